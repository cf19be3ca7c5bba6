package entity

import "time"

// LogMessage is a log record persisted to the database log collection.
type LogMessage struct {
	Time     time.Time `json:"time" bson:"time"`
	Level    string    `json:"level" bson:"level"`
	Category string    `json:"category" bson:"category"`
	Text     string    `json:"text" bson:"text"`
}

func (l *LogMessage) DataType() string {
	return "log"
}
