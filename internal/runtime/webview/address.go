// Package webview holds the addressing model, the message envelope and the
// event names shared by transports, mediators and plugin buses.
package webview

// ID identifies a kind of UI surface. It is fixed when a plugin registers.
type ID string

// InstanceID identifies one live connection of a surface. It is minted on
// connect and invalid after disconnect.
type InstanceID string

// Address routes a message to one webview instance.
type Address struct {
	WebviewID         ID         `json:"webviewId"`
	WebviewInstanceID InstanceID `json:"webviewInstanceId"`
}

// IsZero reports whether the address is absent. Messages without an address
// are system messages that every transport receives.
func (a Address) IsZero() bool {
	return a.WebviewID == "" && a.WebviewInstanceID == ""
}

func (a Address) String() string {
	return string(a.WebviewID) + "/" + string(a.WebviewInstanceID)
}
