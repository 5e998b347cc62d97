// Package http exposes sessions over the WebDriver JSON wire protocol.
//
// Endpoints:
//   - Health: / and /health
//   - Status: GET /wd/hub/status
//   - Sessions: POST /wd/hub/session, GET /wd/hub/sessions,
//     GET|DELETE /wd/hub/session/:id
//   - Context: GET|POST /wd/hub/session/:id/context
//   - Configuration: GET|POST /wd/hub/session/:id/configuration/:mode
//   - Instruments log: GET /wd/hub/session/:id/log
//   - Artifacts: GET /wd/hub/session/:id/artifacts[?archive=tar.gz|tar.zst],
//     GET /wd/hub/session/:id/artifact/*path
//
// Every JSON response uses the wire envelope {sessionId, status, value}.
// Construction failures answer 500 with status 33, unknown sessions 404
// with status 6 and unknown modes 400.
package http
