// Package gate implements the password gate in front of a protected profile.
//
//	CheckingProtection ──(unprotected)──────────────▶ ContentVisible
//	        │
//	        └──(protected, or fetch failed)──▶ PromptingPassword ◀─┐
//	                                               │ submit        │ mismatch /
//	                                               ▼               │ fetch failed
//	                                            Checking ──────────┘
//	                                               │ match
//	                                               ▼
//	                                         Authenticated ──▶ ContentVisible
//
// The secret is fetched again on every submit, so a password changed while
// the prompt is open takes effect immediately.
package gate

import (
	"context"
	"errors"
	"fmt"

	"github.com/refolio/refolio/internal/model"
)

type State string

const (
	CheckingProtection State = "checking_protection"
	PromptingPassword  State = "prompting_password"
	Checking           State = "checking"
	Authenticated      State = "authenticated"
	ContentVisible     State = "content_visible"
)

// Messages shown to the visitor.
const (
	MsgIncorrectPassword = "Incorrect password. Please try again."
	MsgCheckFailed       = "Could not check the password. Please try again."
)

// ProtectionSource loads the gate configuration of a profile.
type ProtectionSource interface {
	GetProtection(ctx context.Context, username string) (model.Protection, error)
}

// Verifier compares a submission with the stored secret hash. It returns nil
// on a match.
type Verifier interface {
	Verify(hash, plaintext string) error
}

// ErrNotPrompting is returned by Submit outside PromptingPassword.
var ErrNotPrompting = errors.New("gate: not prompting for a password")

// View is what the prompt renders.
type View struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
	Input string `json:"-"`
	// Busy disables the submit control while a check is running.
	Busy bool `json:"busy"`
}

// Gate is the state of one visitor's gate for one profile. It is not safe
// for concurrent use.
type Gate struct {
	username string
	source   ProtectionSource
	verifier Verifier

	state   State
	input   string
	errMsg  string
	history []State
}

func New(username string, source ProtectionSource, verifier Verifier) *Gate {
	g := &Gate{username: username, source: source, verifier: verifier}
	g.enter(CheckingProtection)
	return g
}

func (g *Gate) enter(s State) {
	g.state = s
	g.history = append(g.history, s)
}

// State returns the current state.
func (g *Gate) State() State { return g.state }

// History returns every state entered so far, in order.
func (g *Gate) History() []State { return append([]State(nil), g.history...) }

func (g *Gate) View() View {
	return View{State: g.state, Error: g.errMsg, Input: g.input, Busy: g.state == Checking}
}

// Start resolves CheckingProtection. It is a no-op in any other state.
func (g *Gate) Start(ctx context.Context) State {
	if g.state != CheckingProtection {
		return g.state
	}

	p, err := g.source.GetProtection(ctx, g.username)
	if err != nil {
		g.errMsg = MsgCheckFailed
		g.enter(PromptingPassword)
		return g.state
	}

	if !p.Enabled || p.PasswordHash == "" {
		g.enter(ContentVisible)
		return g.state
	}

	g.enter(PromptingPassword)
	return g.state
}

// SetInput records what the visitor typed.
func (g *Gate) SetInput(s string) { g.input = s }

// Submit checks the current input against a freshly fetched secret.
func (g *Gate) Submit(ctx context.Context) (State, error) {
	if g.state != PromptingPassword {
		return g.state, fmt.Errorf("%w (state %s)", ErrNotPrompting, g.state)
	}

	g.enter(Checking)
	g.errMsg = ""

	p, err := g.source.GetProtection(ctx, g.username)
	if err != nil {
		g.errMsg = MsgCheckFailed
		g.enter(PromptingPassword)
		return g.state, nil
	}

	// Protection was switched off while the prompt was open.
	if !p.Enabled || p.PasswordHash == "" {
		g.unlock()
		return g.state, nil
	}

	if err := g.verifier.Verify(p.PasswordHash, g.input); err != nil {
		g.input = ""
		g.errMsg = MsgIncorrectPassword
		g.enter(PromptingPassword)
		return g.state, nil
	}

	g.unlock()
	return g.state, nil
}

func (g *Gate) unlock() {
	g.input = ""
	g.enter(Authenticated)
	g.enter(ContentVisible)
}
