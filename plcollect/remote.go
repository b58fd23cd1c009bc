package plcollect

import (
	"time"

	"github.com/palanteer-go/palanteer/plremote"
	"github.com/palanteer-go/palanteer/plwire"
)

func msToDuration(ms uint32) time.Duration { return time.Duration(ms) * time.Millisecond }

// KillRequested is returned by HandleControl when a KILL_PROGRAM
// command is received, so the caller (cmd/ main loop) can decide how
// to terminate rather than plcollect calling os.Exit itself.
type killRequested struct{}

func (killRequested) Error() string { return "plcollect: remote peer requested KILL_PROGRAM" }

// KillRequested is the sentinel error HandleControl returns for
// CmdKillProgram; callers compare with errors.Is.
var KillRequested error = killRequested{}

// HandleControl dispatches one decoded CONTROL block (spec.md §4.C4
// step 4: "polls remote-control socket for CLI invocations,
// freeze/step, kill, max-latency changes; routes responses back").
func (c *Collector) HandleControl(b plwire.Block) error {
	switch b.Command {
	case plwire.CmdSetFreezeMode:
		c.Freeze.SetFreezeMode(b.FreezeMode)
	case plwire.CmdStepContinue:
		c.Freeze.Release(b.StepBitmap)
	case plwire.CmdSetMaxLatency:
		c.SetMaxLatency(msToDuration(b.MaxLatencyMs))
	case plwire.CmdKillProgram:
		return KillRequested
	case plwire.CmdCallCli:
		return c.handleCliCall(b.CliCall)
	}
	return nil
}

func (c *Collector) handleCliCall(call plwire.CliCall) error {
	decl, handler, ok := c.Registry.Lookup(call.Name)
	if !ok {
		return c.Writer.WriteCliResponse(plwire.CliResponse{
			RequestID: call.RequestID,
			Status:    plwire.CliUnknownName,
		})
	}
	args := plremote.ParseArgsText(call.ArgsText)
	for _, p := range decl.Params {
		if _, given := args[p.Name]; !given && p.Default != "" {
			args[p.Name] = p.Default
		}
	}
	body, err := handler(args)
	status := plwire.CliOK
	if err != nil {
		status = plwire.CliError
		body = err.Error()
	}
	return c.Writer.WriteCliResponse(plwire.CliResponse{
		RequestID: call.RequestID,
		Status:    status,
		Body:      body,
	})
}

// BroadcastDeclarations sends one NTF_DECLARE_CLI per registered CLI,
// the one-time announcement a stream makes right after its Handshake
// (spec.md §4.C6).
func (c *Collector) BroadcastDeclarations() error {
	for _, d := range c.Registry.Declarations() {
		err := c.Writer.WriteNtfDeclareCli(plwire.CliDeclaration{
			Name:        d.Name,
			ParamSpec:   d.ParamSpec,
			Description: d.Description,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
