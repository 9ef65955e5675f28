// Package export pushes inspection documents to SharePoint.
//
// Each submitted inspection is rendered to a JSON report and uploaded via
// the Graph drive API. Export is best-effort: the submit transition never
// waits on or fails with the upload. Outcomes are recorded durably on the
// inspection row (sync status and attempt count) and in an append-only
// sync log, and a cron-scheduled sweep retries failed uploads with
// exponential backoff until the attempt budget runs out.
package export
