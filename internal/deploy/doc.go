// Package deploy turns an accepted push event into one run of the operator's
// deploy command.
//
// The command string is built as "<DEPLOY_COMMAND>-<endpoint>", where the
// endpoint is always taken from the configured set and never from request
// data. It runs through /bin/sh, so the template may use shell syntax.
//
// Timeout handling:
//   - Every run is bounded by DEPLOY_TIMEOUT
//   - On expiry the process group receives SIGTERM
//   - After a 5 second grace period it receives SIGKILL
//   - The result is marked TimedOut and logged as a failed deploy
//
// Failures (non-zero exit, timeout, spawn error) are logged with the captured
// stdout/stderr and published on the event hub. They are never retried and
// never change the HTTP response sent to the webhook sender.
package deploy
