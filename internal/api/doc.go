// Package api hosts the HTTP server for display and admin tooling. Routes:
//   - GET /healthz and /readyz for probes; readyz pings the store.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/problems?gia_type=&subject=&theme= lists problems of a theme.
//   - GET /v1/exam-numbers/{n}/problems lists annotated problems; pass
//     strip_answer=true to drop the answer input row from each condition.
//   - PUT /v1/exam-numbers/{n} and DELETE /v1/exam-numbers set or clear the
//     annotation for {"problem_ids": [...]}.
package api
