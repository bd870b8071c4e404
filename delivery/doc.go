// Package delivery provides ready-made senders for the engine's
// EmailSender and SMSSender interfaces: SMTP email via gomail and SMS
// via the Twilio REST API. They are optional; any implementation of the
// interfaces can be wired instead.
package delivery
