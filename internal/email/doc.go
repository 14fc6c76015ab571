// Package email sends mail through the configured SMTP backend and turns
// server errors into messages for the site admins. Admin notifications are
// queued as background tasks so request handling never waits on SMTP.
package email
