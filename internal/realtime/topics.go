package realtime

import (
	"fmt"
	"strconv"
	"strings"
)

// MeetingEndTopic carries out-of-band video meeting teardown signals.
const MeetingEndTopic = "meeting-end-detection"

// TopicKind classifies a topic name.
type TopicKind string

const (
	KindHelpRequest TopicKind = "help_request"
	KindHelpQueue   TopicKind = "help_queue"
	KindMeetingEnd  TopicKind = "meeting_end"
)

// HelpRequestTopic names the durable chat and presence channel of a help request.
func HelpRequestTopic(helpRequestID int64) string {
	return fmt.Sprintf("help_request_%d", helpRequestID)
}

// HelpQueueTopic names the ephemeral chat and presence channel of a queue.
func HelpQueueTopic(classID, queueID int64) string {
	return fmt.Sprintf("help_queue_%d_%d", classID, queueID)
}

// Topic is a parsed topic name.
type Topic struct {
	Name          string
	Kind          TopicKind
	HelpRequestID int64
	ClassID       int64
	QueueID       int64
}

// ParseTopic recognises the topic naming convention.
func ParseTopic(name string) (Topic, error) {
	if name == MeetingEndTopic {
		return Topic{Name: name, Kind: KindMeetingEnd}, nil
	}
	if rest, ok := strings.CutPrefix(name, "help_request_"); ok {
		id, err := parseID(rest)
		if err != nil {
			return Topic{}, fmt.Errorf("invalid topic %q", name)
		}
		return Topic{Name: name, Kind: KindHelpRequest, HelpRequestID: id}, nil
	}
	if rest, ok := strings.CutPrefix(name, "help_queue_"); ok {
		classPart, queuePart, found := strings.Cut(rest, "_")
		if !found {
			return Topic{}, fmt.Errorf("invalid topic %q", name)
		}
		classID, err := parseID(classPart)
		if err != nil {
			return Topic{}, fmt.Errorf("invalid topic %q", name)
		}
		queueID, err := parseID(queuePart)
		if err != nil {
			return Topic{}, fmt.Errorf("invalid topic %q", name)
		}
		return Topic{Name: name, Kind: KindHelpQueue, ClassID: classID, QueueID: queueID}, nil
	}
	return Topic{}, fmt.Errorf("unknown topic %q", name)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 || strconv.FormatInt(id, 10) != s {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
