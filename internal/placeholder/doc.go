// Package placeholder tracks in-flight capture markers so the map and
// gallery can show a result at the capture site before the uploaded
// asset exists. Entries are injected synchronously at capture time and
// reconciled by the coordinator once the queue reports an outcome.
package placeholder
