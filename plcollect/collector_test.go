package plcollect

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/palanteer-go/palanteer/plproducer"
	"github.com/palanteer-go/palanteer/plremote"
	"github.com/palanteer-go/palanteer/plwire"
)

func newTestCollector() (*Collector, *bytes.Buffer) {
	p := plproducer.NewProducer(16, 4, 64)
	reg := plremote.NewRegistry()
	freeze := plremote.NewFreezeController()
	var buf bytes.Buffer
	w := plwire.NewWriter(&buf, binary.LittleEndian)
	return NewCollector(p, reg, freeze, w), &buf
}

func TestCycleFlushesStringsThenEvents(t *testing.T) {
	c, buf := newTestCollector()
	th := c.Producer.DeclareThread()
	nameHash := c.Producer.Declare("myScope")
	c.Producer.Begin(th, nameHash)
	c.Producer.End(th, nameHash)

	if err := c.Cycle(); err != nil {
		t.Fatal(err)
	}

	r := plwire.NewReader(buf)
	r.SetEventOrder(binary.LittleEndian)
	if !r.Next() {
		t.Fatalf("expected a STRING block: %v", r.Err())
	}
	if r.Block.Type != plwire.BlockString || len(r.Block.Strings) != 1 || r.Block.Strings[0].Text != "myScope" {
		t.Fatalf("got %+v", r.Block)
	}
	if !r.Next() {
		t.Fatalf("expected an EVENT block: %v", r.Err())
	}
	if len(r.Block.Events) != 2 {
		t.Fatalf("got %d events", len(r.Block.Events))
	}
}

func TestHandleControlDispatchesCli(t *testing.T) {
	c, buf := newTestCollector()
	if err := c.Registry.Register("ping", "", "", func(plremote.Args) (string, error) {
		return "pong", nil
	}); err != nil {
		t.Fatal(err)
	}

	err := c.HandleControl(plwire.Block{
		Command: plwire.CmdCallCli,
		CliCall: plwire.CliCall{RequestID: 7, Name: "ping"},
	})
	if err != nil {
		t.Fatal(err)
	}

	r := plwire.NewReader(buf)
	if !r.Next() {
		t.Fatalf("expected a CONTROL block: %v", r.Err())
	}
	if r.Block.CliResponse.Status != plwire.CliOK || r.Block.CliResponse.Body != "pong" {
		t.Fatalf("got %+v", r.Block.CliResponse)
	}
}

func TestHandleControlKillProgram(t *testing.T) {
	c, _ := newTestCollector()
	err := c.HandleControl(plwire.Block{Command: plwire.CmdKillProgram})
	if err != KillRequested {
		t.Fatalf("got %v, want KillRequested", err)
	}
}

func TestHandleControlFreezeAndStep(t *testing.T) {
	c, _ := newTestCollector()
	c.HandleControl(plwire.Block{Command: plwire.CmdSetFreezeMode, FreezeMode: true})
	if !c.Freeze.Frozen() {
		t.Fatal("expected freeze mode on")
	}
	var bitmap [4]uint64
	bitmap[0] = 1
	c.HandleControl(plwire.Block{Command: plwire.CmdStepContinue, StepBitmap: bitmap})
	c.Freeze.Wait(0) // must not block: bit 0 was released
}
