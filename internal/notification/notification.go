/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/blnkfinance/inspectsync/config"
	"github.com/blnkfinance/inspectsync/internal/request"
)

var client = &http.Client{Timeout: 10 * time.Second}

// SlackNotification posts err to the given Slack webhook as a block message.
//
// Parameters:
// - ctx: Bounds the webhook request.
// - webhookURL: The incoming webhook URL.
// - project: Shown in the message header.
// - err: The error to be reported.
//
// Returns:
// - error: An error if the message could not be built or delivered.
func SlackNotification(ctx context.Context, webhookURL, project string, err error) error {
	section := func(text string) map[string]interface{} {
		return map[string]interface{}{
			"type":   "section",
			"fields": []map[string]interface{}{{"type": "mrkdwn", "text": text}},
		}
	}
	data := map[string]interface{}{
		"blocks": []map[string]interface{}{
			{
				"type": "header",
				"text": map[string]interface{}{
					"type":  "plain_text",
					"text":  fmt.Sprintf("Error From %s 🐞", project),
					"emoji": true,
				},
			},
			section("*Error:*\n" + err.Error()),
			section("*Time:*\n" + time.Now().Format(time.RFC822)),
		},
	}

	payload, e := request.ToJsonReq(data)
	if e != nil {
		return e
	}

	req, e := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, payload)
	if e != nil {
		return e
	}

	// Slack answers "ok" as plain text, so the body is not decoded.
	_, e = request.Call(client, req, nil)
	return e
}

// NotifyError logs systemError and, when a Slack webhook is configured, reports it there.
// It returns immediately; delivery happens on its own goroutine.
func NotifyError(systemError error) {
	go func(systemError error) {
		if err := notify(context.Background(), systemError); err != nil {
			logrus.WithError(err).Warn("failed to deliver error notification")
		}
	}(systemError)
}

func notify(ctx context.Context, systemError error) error {
	logrus.Error(systemError)

	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Slack.WebhookUrl == "" {
		return nil
	}

	project := conf.ProjectName
	if project == "" {
		project = "Inspectsync"
	}
	return SlackNotification(ctx, conf.Notification.Slack.WebhookUrl, project, systemError)
}
