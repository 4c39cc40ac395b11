// Package services defines the error taxonomy shared by packages that call
// external collaborators (summarizer, mailer, stores). The worker uses the
// classification to choose between retry and dead-letter.
package services
