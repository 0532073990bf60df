// Package service provides the account and game-record rules behind the
// REST API.
//
// The service package implements:
//   - Player registration, email verification, login and logout
//   - Game records that move from pending to playing to finished
//
// Core Interfaces:
//
// AccountService and RecordService are the operations the HTTP layer calls.
// UserRepository and GameRepository are implemented by the store package.
// TokenIssuer and TokenRevoker are implemented by the auth package.
//
// Usage:
//
//	accounts := service.NewAccountService(db, tokens, service.LogNotifier{Log: log}, "http://localhost:8080")
//	user, err := accounts.Register(ctx, service.RegisterRequest{...})
//
//	records := service.NewRecordService(db)
//	game, err := records.UpdateGame(ctx, service.ActionJoin, gameID, service.UpdateGameRequest{UserID: "DOEJOH"})
//
// Game Records:
//
// A record is created pending by its creator. "join" seats a second player
// and starts the game, "start" starts it, and "finish" stores the winner and
// score. A finished record cannot change again.
package service
