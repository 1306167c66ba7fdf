package daemon

import (
	"fmt"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// CommandKind names a control command.
type CommandKind string

const (
	CmdReload   CommandKind = "reload"
	CmdRestart  CommandKind = "restart"
	CmdPlay     CommandKind = "play"
	CmdStatus   CommandKind = "status"
	CmdResume   CommandKind = "resume"
	CmdSkipNews CommandKind = "skip_news"
	CmdVolume   CommandKind = "volume"
)

// Command is one request for the reconciliation loop. Commands are applied
// between ticks, never during one.
type Command struct {
	Kind      CommandKind
	StationID string // CmdPlay
	Volume    int    // CmdVolume
}

func Reload() Command               { return Command{Kind: CmdReload} }
func Restart() Command              { return Command{Kind: CmdRestart} }
func Status() Command               { return Command{Kind: CmdStatus} }
func Resume() Command               { return Command{Kind: CmdResume} }
func SkipNews() Command             { return Command{Kind: CmdSkipNews} }
func Play(stationID string) Command { return Command{Kind: CmdPlay, StationID: stationID} }
func Volume(level int) Command      { return Command{Kind: CmdVolume, Volume: level} }

// Validate checks arguments that do not need daemon state.
func (c Command) Validate() error {
	switch c.Kind {
	case CmdReload, CmdRestart, CmdStatus, CmdResume, CmdSkipNews:
		return nil
	case CmdPlay:
		if c.StationID == "" {
			return fmt.Errorf("%w: play needs a station id", domain.ErrInvalidCommand)
		}
		return nil
	case CmdVolume:
		if c.Volume < 0 || c.Volume > 100 {
			return fmt.Errorf("%w: volume %d out of range 0-100", domain.ErrInvalidCommand, c.Volume)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", domain.ErrInvalidCommand, c.Kind)
	}
}

// Ack is the loop's answer to a command.
type Ack struct {
	ID      string      `json:"id"`
	Command CommandKind `json:"command"`
	OK      bool        `json:"ok"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Status  Snapshot    `json:"status"`
}

type request struct {
	id    string
	cmd   Command
	reply chan result
}

type result struct {
	ack Ack
	err error
}
