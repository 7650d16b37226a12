// Package sequence implements the guide email drip.
//
// A guide download schedules four emails for the lead at fixed day offsets
// (0, 2, 5 and 10 days by default). A worker calls ProcessDue on a timer; due
// rows are claimed atomically (pending -> sending) so concurrent workers never
// send the same row twice, rendered with the persona template for their step
// and handed to the mail sender. Failed sends are retried with exponential
// backoff and marked failed after MaxAttempts.
//
// Template lookup falls back from the persona template for a step, to the
// generic template for that step, to the built-in default in package mailing.
package sequence
