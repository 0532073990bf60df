package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrConfigNotFound    = errors.New("configuration not found")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedFormat = errors.New("unsupported configuration format")
)

// Duration is a time.Duration that reads and writes as "10s" in files.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"10s\": %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Settings holds every tunable of the server.
type Settings struct {
	Server ServerSettings `json:"server" yaml:"server"`
	Rooms  RoomSettings   `json:"rooms" yaml:"rooms"`
	Hub    HubSettings    `json:"hub" yaml:"hub"`
	Auth   AuthSettings   `json:"auth" yaml:"auth"`
	Store  StoreSettings  `json:"store" yaml:"store"`
	Events EventSettings  `json:"events" yaml:"events"`
}

type ServerSettings struct {
	Port            int      `json:"port" yaml:"port"`
	ShutdownTimeout Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	AllowedOrigins  []string `json:"allowedOrigins" yaml:"allowedOrigins"`
}

type RoomSettings struct {
	MailboxSize  int `json:"mailboxSize" yaml:"mailboxSize"`
	ResultBuffer int `json:"resultBuffer" yaml:"resultBuffer"`
}

// HubSettings controls each WebSocket connection.
type HubSettings struct {
	SendBuffer     int      `json:"sendBuffer" yaml:"sendBuffer"`
	MaxMessageSize int64    `json:"maxMessageSize" yaml:"maxMessageSize"`
	WriteWait      Duration `json:"writeWait" yaml:"writeWait"`
	PongWait       Duration `json:"pongWait" yaml:"pongWait"`
	PingPeriod     Duration `json:"pingPeriod" yaml:"pingPeriod"`
}

type AuthSettings struct {
	Secret    string   `json:"secret" yaml:"secret"`
	TokenTTL  Duration `json:"tokenTTL" yaml:"tokenTTL"`
	RedisAddr string   `json:"redisAddr" yaml:"redisAddr"`
}

type StoreSettings struct {
	Path string `json:"path" yaml:"path"`
}

// EventSettings configures result publishing. An empty NATSURL disables it.
type EventSettings struct {
	NATSURL       string `json:"natsUrl" yaml:"natsUrl"`
	SubjectPrefix string `json:"subjectPrefix" yaml:"subjectPrefix"`
}

// Default returns the settings used when no file is given.
func Default() *Settings {
	return &Settings{
		Server: ServerSettings{
			Port:            8080,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Rooms: RoomSettings{
			MailboxSize:  1024,
			ResultBuffer: 256,
		},
		Hub: HubSettings{
			SendBuffer:     256,
			MaxMessageSize: 4096,
			WriteWait:      Duration(10 * time.Second),
			PongWait:       Duration(60 * time.Second),
			PingPeriod:     Duration(54 * time.Second),
		},
		Auth: AuthSettings{
			TokenTTL: Duration(3 * time.Hour),
		},
		Store: StoreSettings{
			Path: "morpion.db",
		},
		Events: EventSettings{
			SubjectPrefix: "morpion.rooms",
		},
	}
}

// Validate checks that the settings can run a server.
func (s *Settings) Validate() error {
	var errs []error

	if s.Server.Port < 1 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Server.Port))
	}
	if s.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdownTimeout must be positive"))
	}
	if s.Rooms.MailboxSize <= 0 {
		errs = append(errs, errors.New("rooms.mailboxSize must be positive"))
	}
	if s.Rooms.ResultBuffer <= 0 {
		errs = append(errs, errors.New("rooms.resultBuffer must be positive"))
	}
	if s.Hub.SendBuffer <= 0 {
		errs = append(errs, errors.New("hub.sendBuffer must be positive"))
	}
	if s.Hub.MaxMessageSize <= 0 {
		errs = append(errs, errors.New("hub.maxMessageSize must be positive"))
	}
	if s.Hub.WriteWait <= 0 {
		errs = append(errs, errors.New("hub.writeWait must be positive"))
	}
	// pings must arrive before the read deadline expires
	if s.Hub.PingPeriod <= 0 || s.Hub.PingPeriod >= s.Hub.PongWait {
		errs = append(errs, fmt.Errorf("hub.pingPeriod %s must be positive and less than hub.pongWait %s", s.Hub.PingPeriod, s.Hub.PongWait))
	}
	if s.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.tokenTTL must be positive"))
	}
	if s.Events.SubjectPrefix == "" {
		errs = append(errs, errors.New("events.subjectPrefix is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
