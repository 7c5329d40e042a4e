package view

import (
	"fmt"
	"strings"
	"sync"
)

// Screen is one of the authenticated views.
type Screen string

const (
	Dashboard Screen = "dashboard"
	History   Screen = "history"
	Settings  Screen = "settings"
)

// Screens lists the navigable screens in menu order.
var Screens = []Screen{Dashboard, History, Settings}

// ParseScreen resolves a screen name case-insensitively.
func ParseScreen(name string) (Screen, error) {
	s := Screen(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Screens {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown screen %q", name)
}

// Title is the heading shown for the screen.
func (s Screen) Title() string {
	switch s {
	case History:
		return "Transaction History"
	case Settings:
		return "Account Settings"
	default:
		return "Dashboard"
	}
}

// State is a snapshot of the router.
type State struct {
	Screen   Screen
	MenuOpen bool
}

// Router tracks which screen is shown and whether the profile menu is open.
// Navigation never touches the network; entering the dashboard is reported
// so the caller can trigger the initial sync.
type Router struct {
	mu       sync.Mutex
	screen   Screen
	menuOpen bool
}

func NewRouter() *Router {
	return &Router{screen: Dashboard}
}

func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return State{Screen: r.screen, MenuOpen: r.menuOpen}
}

// Navigate selects a screen and closes the menu.
func (r *Router) Navigate(s Screen) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screen = s
	r.menuOpen = false
}

// ToggleMenu flips the profile menu.
func (r *Router) ToggleMenu() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.menuOpen = !r.menuOpen
	return r.menuOpen
}

// OpenSettingsFromMenu is the menu's "Account Settings" item.
func (r *Router) OpenSettingsFromMenu() {
	r.Navigate(Settings)
}

// ViewAll is the recent-activity "View All" link.
func (r *Router) ViewAll() {
	r.Navigate(History)
}

// EnterFromLogin shows the dashboard after a login.
func (r *Router) EnterFromLogin() {
	r.Navigate(Dashboard)
}

// Reset returns to the initial state on logout.
func (r *Router) Reset() {
	r.Navigate(Dashboard)
}
