// Package suppression implements the opt-out list.
//
// This is the single source of truth for whether an email address or phone
// number may be contacted. Opt-outs flow in from unsubscribe links, inbound
// STOP replies and manual admin actions, and are checked before every drip
// email and campaign message.
//
// The service layer depends on the Repository interface defined in
// repository.go. It never imports net/http or database/sql directly.
package suppression
