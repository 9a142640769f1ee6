// Package webhook receives push notifications from a source-control host and
// decides whether they should trigger a deploy.
//
// # Security Model
//
//   - HMAC-SHA256 over the raw request body, "sha256=<hex>" in X-Hub-Signature-256
//   - Constant-time digest comparison (hmac.Equal)
//   - Signature is checked before the body is parsed
//   - Body size limit enforced before verification
//   - Deploy targets are looked up in the configured endpoint set; request
//     data never reaches the shell command
//
// # Routes
//
// All routes live under MOUNT_PATH:
//
//	GET  /            liveness text including the port
//	GET  /healthz     JSON health
//	GET  /deploys     recent deploy events (JSON, ?since=<id>)
//	GET  /events      deploy events as Server-Sent Events
//	POST /<endpoint>  webhook receiver, one route per configured endpoint
//
// # Request Flow
//
//  1. Body read up to MAX_BODY_SIZE (413 if larger)
//  2. Signature verified (401 if missing or wrong)
//  3. JSON parsed (200 with an error message if malformed, so the sender does not retry)
//  4. ref and repository.name required (400 naming the missing field)
//  5. Branch after the last "/" of ref compared with BRANCH_<REPOSITORY>
//     (200 "ignoring" on mismatch or unknown repository)
//  6. Deploy started; 200 "webhook received" whatever the command's exit code
//
// The payload's repository.name picks the deploy, not the route it arrived
// on: every endpoint route accepts any configured repository. Logs and
// webhook.ignored events carry the route separately from the repository.
package webhook
