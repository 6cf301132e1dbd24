package sync

import "github.com/datatrails/groveauth/store"

// TopicLogMap resolves a topic name into the set of (author, log_id)
// pairs an acceptor is willing to share for it (spec §4.9 phase 1). A
// false second return means the topic is not recognised.
type TopicLogMap interface {
	Resolve(topic string) ([]store.LogKey, bool)
}

// StaticTopicMap is the simplest TopicLogMap: a fixed table configured
// ahead of time, suitable for a single-process test harness or a node
// whose topic/log associations are set at startup rather than
// discovered dynamically.
type StaticTopicMap map[string][]store.LogKey

func (m StaticTopicMap) Resolve(topic string) ([]store.LogKey, bool) {
	logs, ok := m[topic]
	return logs, ok
}
