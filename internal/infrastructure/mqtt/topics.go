package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is the root of every Fox Bridge topic.
const DefaultTopicPrefix = "foxbridge"

// Command actions accepted on the command topics.
const (
	CommandInitialize = "initialize"
	CommandReset      = "reset"
)

// Topics builds Fox Bridge topic names under a prefix.
//
//	topics := mqtt.Topics{Prefix: "foxbridge"}
//	topics.TenantStatus("r1") // "foxbridge/tenant/r1/status"
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// SystemStatus is the retained bridge online/offline topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// TenantStatus is the retained status topic of one tenant.
func (t Topics) TenantStatus(tenantID string) string {
	return fmt.Sprintf("%s/tenant/%s/status", t.prefix(), tenantID)
}

// TenantDelivery carries delivery results for one tenant.
func (t Topics) TenantDelivery(tenantID string) string {
	return fmt.Sprintf("%s/tenant/%s/delivery", t.prefix(), tenantID)
}

// Command is the topic for one command to one tenant.
func (t Topics) Command(tenantID, action string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.prefix(), tenantID, action)
}

// AllCommands matches every command topic.
func (t Topics) AllCommands() string {
	return t.prefix() + "/command/+/+"
}

// ParseCommand extracts the tenant and action from a command topic.
func (t Topics) ParseCommand(topic string) (tenantID, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/command/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
