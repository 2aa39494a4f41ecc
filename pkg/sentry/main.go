package sentry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
)

type InfoData map[string]interface{}

var inited = false

// Setup is a no-op when dsn is empty; Send then silently drops events.
func Setup(dsn string) {
	if dsn == "" {
		return
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		fmt.Printf("failed to sentry init: %s", err)
		return
	}
	inited = true
	sentry.Flush(2 * time.Second)
}

func Send(title string, data InfoData, logLevel sentry.Level) {
	if !inited {
		return
	}

	go func(localHub *sentry.Hub) {
		localHub.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetLevel(logLevel)
			scope.SetExtras(data)
		})
		localHub.CaptureMessage(title)
	}(sentry.CurrentHub().Clone())
}
