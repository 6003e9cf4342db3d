package push

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ZAKERR/agent-desk/internal/common/config"
)

// DispatchRemote fans a message out to every enabled provider-specific
// channel concurrently, fire-and-forget (spec.md §4.10's Stop/Notification
// push path, extended with the typed providers). Each provider validates
// its own required fields and silently no-ops when unconfigured.
func (d *Dispatcher) DispatchRemote(ctx context.Context, message string) {
	go d.sendTelegram(ctx, d.telegram, message)
	go d.sendDingTalk(ctx, d.dingtalk, message)
	go d.sendWeChat(ctx, d.wechat, message)
}

func (d *Dispatcher) sendTelegram(ctx context.Context, cfg config.TelegramConfig, message string) {
	if !cfg.Enabled || cfg.BotToken == "" || cfg.ChatID == "" {
		return
	}
	endpoint := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", cfg.BotToken)
	body, err := json.Marshal(map[string]string{
		"chat_id": cfg.ChatID,
		"text":    message,
	})
	if err != nil {
		d.log.WithError(err).Warn("marshal telegram payload failed")
		return
	}
	if err := d.postJSON(ctx, endpoint, body); err != nil {
		d.log.WithError(err).Warn("telegram send failed")
	}
}

func (d *Dispatcher) sendDingTalk(ctx context.Context, cfg config.DingTalkConfig, message string) {
	if !cfg.Enabled || cfg.AccessToken == "" {
		return
	}
	webhook := cfg.WebhookURL
	if webhook == "" {
		webhook = "https://oapi.dingtalk.com/robot/send"
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	sign := ""
	if cfg.Secret != "" {
		stringToSign := timestamp + "\n" + cfg.Secret
		mac := hmac.New(sha256.New, []byte(cfg.Secret))
		mac.Write([]byte(stringToSign))
		sign = url.QueryEscape(base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	}

	fullURL := fmt.Sprintf("%s?access_token=%s&timestamp=%s&sign=%s", webhook, cfg.AccessToken, timestamp, sign)
	body, err := json.Marshal(map[string]any{
		"msgtype": "text",
		"text":    map[string]string{"content": message},
	})
	if err != nil {
		d.log.WithError(err).Warn("marshal dingtalk payload failed")
		return
	}
	if err := d.postJSON(ctx, fullURL, body); err != nil {
		d.log.WithError(err).Warn("dingtalk send failed")
	}
}

func (d *Dispatcher) sendWeChat(ctx context.Context, cfg config.WeChatConfig, message string) {
	if !cfg.Enabled {
		return
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "pushplus"
	}

	var targetURL string
	var body []byte
	var err error

	switch provider {
	case "pushplus":
		if cfg.PushPlusToken == "" {
			return
		}
		targetURL = "https://www.pushplus.plus/send"
		body, err = json.Marshal(map[string]string{
			"token":   cfg.PushPlusToken,
			"title":   "Agent Desk",
			"content": message,
		})
	case "serverchan":
		if cfg.ServerChanSendKey == "" {
			return
		}
		targetURL = fmt.Sprintf("https://sctapi.ftqq.com/%s.send", cfg.ServerChanSendKey)
		body, err = json.Marshal(map[string]string{
			"title": "Agent Desk",
			"desp":  message,
		})
	default:
		return
	}
	if err != nil {
		d.log.WithError(err).Warn("marshal wechat payload failed")
		return
	}
	if err := d.postJSON(ctx, targetURL, body); err != nil {
		d.log.WithError(err).Warn("wechat send failed")
	}
}

func (d *Dispatcher) postJSON(ctx context.Context, targetURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
