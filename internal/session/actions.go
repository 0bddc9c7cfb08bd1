package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/livetemplate/resultplay/internal/config"
	"github.com/livetemplate/resultplay/internal/editor"
)

// Action ids registered by DefaultRegistry.
const (
	ActionFormatAndSave = "format-and-save"
	ActionFormat        = "format"
	ActionSave          = "save"
	ActionReset         = "reset"
)

// ActionContext is everything a handler may touch.
type ActionContext struct {
	Session *Session
	Editor  editor.Editor
	Notify  Notifier
}

// Handler runs an action. Errors are already reported to the user through
// ac.Notify; the returned error is for the caller's logs.
type Handler func(ctx context.Context, ac *ActionContext) error

type registered struct {
	action  editor.Action
	handler Handler
}

// Registry maps action ids to handlers.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]registered
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]registered)}
}

// Register adds an action. Ids and keybindings must be unique.
func (r *Registry) Register(a editor.Action, h Handler) error {
	if a.ID == "" {
		return errors.New("action id is required")
	}
	if h == nil {
		return fmt.Errorf("action %q: handler is required", a.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[a.ID]; exists {
		return fmt.Errorf("action %q already registered", a.ID)
	}
	if a.Keybinding != nil {
		for id, other := range r.actions {
			if other.action.Keybinding != nil && other.action.Keybinding.Equal(*a.Keybinding) {
				return fmt.Errorf("action %q: keybinding %s already bound to %q", a.ID, a.Keybinding, id)
			}
		}
	}
	r.actions[a.ID] = registered{action: a, handler: h}
	return nil
}

// Actions lists the registered actions sorted by id.
func (r *Registry) Actions() []editor.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	actions := lo.MapToSlice(r.actions, func(_ string, reg registered) editor.Action {
		return reg.action
	})
	sort.Slice(actions, func(i, j int) bool { return actions[i].ID < actions[j].ID })
	return actions
}

// Run invokes the handler registered under id.
func (r *Registry) Run(ctx context.Context, id string, ac *ActionContext) error {
	r.mu.RLock()
	reg, ok := r.actions[id]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}
	if ac.Notify == nil {
		ac.Notify = NotifyFunc(func(context.Context, Notice) {})
	}
	return reg.handler(ctx, ac)
}

// DefaultRegistry registers the playground actions with the configured
// keybindings.
func DefaultRegistry(kb config.KeybindingsConfig) (*Registry, error) {
	formatAndSave, err := editor.ParseKeybinding(kb.FormatAndSave)
	if err != nil {
		return nil, err
	}
	formatOnly, err := editor.ParseKeybinding(kb.Format)
	if err != nil {
		return nil, err
	}

	r := NewRegistry()
	defs := []struct {
		action  editor.Action
		handler Handler
	}{
		{editor.Action{ID: ActionFormatAndSave, Label: "Format and Save", Keybinding: &formatAndSave}, FormatAndSave},
		{editor.Action{ID: ActionFormat, Label: "Format Document", Keybinding: &formatOnly}, FormatOnly},
		{editor.Action{ID: ActionSave, Label: "Copy Share Link"}, SaveOnly},
		{editor.Action{ID: ActionReset, Label: "Reset to Example"}, ResetBuffer},
	}
	for _, d := range defs {
		if err := r.Register(d.action, d.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// FormatAndSave formats the editor content when a formatter is configured,
// then saves whatever the buffer holds. A format failure does not prevent
// the save.
func FormatAndSave(ctx context.Context, ac *ActionContext) error {
	var formatErr error
	if ac.Session.CanFormat() {
		formatErr = FormatOnly(ctx, ac)
	}
	return errors.Join(formatErr, SaveOnly(ctx, ac))
}

// FormatOnly replaces the editor content with its formatted version,
// keeping the cursor and selections where they still fit.
func FormatOnly(ctx context.Context, ac *ActionContext) error {
	formatted, err := ac.Session.Format(ctx, ac.Editor.Value())
	if err != nil {
		ac.Notify.Notify(ctx, NoticeFor(err))
		return err
	}
	editor.Replace(ac.Editor, formatted)
	return nil
}

// SaveOnly writes the editor content into the address and copies it.
func SaveOnly(ctx context.Context, ac *ActionContext) error {
	_, err := ac.Session.Save(ctx, ac.Editor.Value())
	if err != nil {
		ac.Notify.Notify(ctx, NoticeFor(err))
		return err
	}
	ac.Notify.Notify(ctx, Info("share", "Link copied to clipboard"))
	return nil
}

// ResetBuffer puts the default text back in the editor.
func ResetBuffer(ctx context.Context, ac *ActionContext) error {
	text, err := ac.Session.Reset(ctx)
	if err != nil {
		ac.Notify.Notify(ctx, NoticeFor(err))
		return err
	}
	ac.Editor.SetValue(text)
	return nil
}
