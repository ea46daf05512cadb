package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	errorsmod "cosmossdk.io/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"fleetarbiter/internal/attest"
	"fleetarbiter/internal/codec"
	"fleetarbiter/internal/types"
)

// ReplyOK is returned for every accepted command.
const ReplyOK = "OK"

// rejection is a validation failure. reply goes back to the caller, event
// (if set) replaces the default broadcast text.
type rejection struct {
	kind  *errorsmod.Error
	reply string
	event string
	cause error
}

func (r *rejection) Error() string { return r.reply }

func (r *rejection) Unwrap() error { return r.kind }

func reject(kind *errorsmod.Error, format string, args ...any) *rejection {
	return &rejection{kind: kind, reply: fmt.Sprintf(format, args...)}
}

// Outcome is the result of one command.
type Outcome struct {
	Cmd     codec.Command
	Session string
	Player  string
	Reply   string
	Err     error
}

func (o Outcome) OK() bool { return o.Err == nil }

// Code is the registered ABCI code of the rejection category, 0 on success.
func (o Outcome) Code() (codespace string, code uint32) {
	if o.Err == nil {
		return "", 0
	}
	var e *errorsmod.Error
	if errors.As(o.Err, &e) {
		return e.Codespace(), e.ABCICode()
	}
	return types.ErrInvalidRequest.Codespace(), types.ErrInvalidRequest.ABCICode()
}

// Execute runs env and returns the plain-text reply.
func (a *Arbiter) Execute(ctx context.Context, env codec.Envelope) string {
	return a.Apply(ctx, env).Reply
}

// ExecuteRaw decodes a JSON envelope and runs it.
func (a *Arbiter) ExecuteRaw(ctx context.Context, raw []byte) string {
	return a.ApplyRaw(ctx, raw).Reply
}

// Apply runs env at wall-clock time. A block-driven arbiter rejects it.
func (a *Arbiter) Apply(ctx context.Context, env codec.Envelope) Outcome {
	if a.BlockDriven() {
		return a.outsideConsensus(env.Cmd)
	}
	return a.applyAt(ctx, env, a.clock.Now())
}

func (a *Arbiter) ApplyRaw(ctx context.Context, raw []byte) Outcome {
	if a.BlockDriven() {
		return a.outsideConsensus(codec.CmdUnknown)
	}
	return a.applyRawAt(ctx, raw, a.clock.Now())
}

func (a *Arbiter) outsideConsensus(cmd codec.Command) Outcome {
	label := "unknown"
	if cmd.Valid() {
		label = cmd.String()
	}
	a.metrics.commands.WithLabelValues(label, "rejected").Inc()
	return Outcome{Cmd: cmd}.fail(reject(types.ErrInvalidRequest, "Commands must be submitted as transactions"))
}

func (a *Arbiter) applyRawAt(ctx context.Context, raw []byte, now time.Time) Outcome {
	env, err := codec.DecodeEnvelope(raw)
	if err != nil {
		out := Outcome{
			Reply: "Invalid command: " + err.Error(),
			Err:   errorsmod.Wrap(types.ErrInvalidRequest, err.Error()),
		}
		a.metrics.commands.WithLabelValues("unknown", "rejected").Inc()
		a.logger.Debug("command rejected", "err", err)
		return out
	}
	return a.applyAt(ctx, env, now)
}

func (a *Arbiter) applyAt(ctx context.Context, env codec.Envelope, now time.Time) Outcome {
	_, span := a.tracer.Start(ctx, "arbiter."+strings.ToLower(env.Cmd.String()))
	defer span.End()

	out := a.dispatch(env, now)

	span.SetAttributes(
		attribute.String("fleet.session", out.Session),
		attribute.String("fleet.player", out.Player),
	)
	result := "ok"
	if out.Err != nil {
		result = "rejected"
		span.SetStatus(codes.Error, out.Reply)

		var rej *rejection
		msg := fmt.Sprintf("%s by %s rejected: %s", env.Cmd, displayName(out.Player), out.Reply)
		if errors.As(out.Err, &rej) && rej.event != "" {
			msg = rej.event
		}
		a.emit(types.EventTypeCommandRejected, out.Session, msg)

		logArgs := []any{"cmd", env.Cmd.String(), "session", out.Session, "player", out.Player, "reply", out.Reply}
		if rej != nil && rej.cause != nil {
			logArgs = append(logArgs, "err", rej.cause)
		}
		a.logger.Debug("command rejected", logArgs...)
	} else {
		a.logger.Info("command accepted", "cmd", env.Cmd.String(), "session", out.Session, "player", out.Player)
	}
	a.metrics.commands.WithLabelValues(env.Cmd.String(), result).Inc()
	return out
}

// dispatch verifies the receipt against the image id of the declared
// command, decodes the journal schema for that command and routes it.
func (a *Arbiter) dispatch(env codec.Envelope, now time.Time) Outcome {
	out := Outcome{Cmd: env.Cmd}

	id, err := attest.ImageIDFor(env.Cmd)
	if err != nil {
		out.Reply, out.Err = "Unknown command", errorsmod.Wrap(types.ErrInvalidRequest, err.Error())
		return out
	}
	if err := a.verifier.Verify(env.Receipt, id); err != nil {
		rej := reject(types.ErrAttestationInvalid, "Could not verify receipt")
		rej.event = fmt.Sprintf("Attempting to %s with invalid receipt", verb(env.Cmd))
		rej.cause = err
		return out.fail(rej)
	}

	switch env.Cmd {
	case codec.CmdFire:
		j, err := codec.DecodeFireJournal(env.Receipt.Journal)
		if err != nil {
			return out.fail(badJournal(err))
		}
		out.Session, out.Player = j.GameID, j.Fleet
		return out.finish(a.handleFire(env, j, now))

	case codec.CmdReport:
		j, err := codec.DecodeReportJournal(env.Receipt.Journal)
		if err != nil {
			return out.fail(badJournal(err))
		}
		out.Session, out.Player = j.GameID, j.Fleet
		return out.finish(a.handleReport(env, j, now))

	default:
		j, err := codec.DecodeBaseJournal(env.Cmd, env.Receipt.Journal)
		if err != nil {
			return out.fail(badJournal(err))
		}
		out.Session, out.Player = j.GameID, j.Fleet
		switch env.Cmd {
		case codec.CmdJoin:
			return out.finish(a.handleJoin(env, j, now))
		case codec.CmdWave:
			return out.finish(a.handleWave(env, j, now))
		default:
			return out.finish(a.handleClaimVictory(env, j, now))
		}
	}
}

func (o Outcome) fail(err error) Outcome {
	o.Reply, o.Err = err.Error(), err
	return o
}

func (o Outcome) finish(err error) Outcome {
	if err != nil {
		return o.fail(err)
	}
	o.Reply = ReplyOK
	return o
}

func badJournal(err error) *rejection {
	rej := reject(types.ErrInvalidRequest, "Could not decode journal")
	rej.cause = err
	return rej
}

func verb(c codec.Command) string {
	if c == codec.CmdWin {
		return "claim victory"
	}
	return strings.ToLower(c.String())
}

func displayName(p string) string {
	if p == "" {
		return "unknown player"
	}
	return p
}
