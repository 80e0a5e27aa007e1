package redis

// Redis key naming conventions for job data.
// All keys are prefixed with "genqueue:" to avoid collisions.

const keyPrefix = "genqueue:"

// jobKey returns the Hash key for a job: genqueue:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// namespaceKey returns the Sorted Set indexing a namespace by creation
// time: genqueue:namespace:{name}
func namespaceKey(name string) string { return keyPrefix + "namespace:" + name }

// eventsChannel returns the Pub/Sub channel for a namespace's job events:
// genqueue:events:{name}
func eventsChannel(name string) string { return keyPrefix + "events:" + name }
