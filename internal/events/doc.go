// Package events carries job lifecycle notifications from the job controller
// to interested components without coupling them to the job package.
//
// The primary components are:
// - JobEvent: a completed, failed or drained notification with a JSON payload
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events
