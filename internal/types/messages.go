package types

import (
	"fmt"
	"time"
)

// NotificationKind identifies what happened to a call
type NotificationKind string

const (
	NotifyWaiting   NotificationKind = "call_waiting"
	NotifyGreeting  NotificationKind = "call_greeting"
	NotifyEscalated NotificationKind = "call_escalated"
	NotifyResolved  NotificationKind = "call_resolved"
	NotifyFailed    NotificationKind = "call_failed"
	NotifyAbandoned NotificationKind = "call_abandoned"
)

// Messages said to the caller
const (
	MsgWait     = "All employees are busy. Please hang on: you'll be served as soon as possible."
	MsgGreeting = "Hi! I'm a %s. How can I help you?"
	MsgEscalate = "This looks like a challenging issue! I'm going to call my boss."
	MsgEnd      = "Issue solved! Thank you for calling, have a nice day!"
	MsgFailed   = "Sorry, something went wrong on our side. Please call again."
	MsgAbandon  = "The call was dropped before anyone could answer it."
)

// Notification is a message addressed to the caller of a call
type Notification struct {
	Type      NotificationKind `json:"type"`
	CallID    string           `json:"callId"`
	Tier      Tier             `json:"tier"`
	WorkerID  string           `json:"workerId,omitempty"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// GreetingMessage returns the greeting of a worker of the given tier
func GreetingMessage(tier Tier) string {
	return fmt.Sprintf(MsgGreeting, tier.String())
}

// EndMessage returns the closing message including the call duration
func EndMessage(handleTime time.Duration) string {
	return fmt.Sprintf("%s[%dms]", MsgEnd, handleTime.Milliseconds())
}
