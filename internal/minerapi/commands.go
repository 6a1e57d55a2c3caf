package minerapi

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"gitlab.com/TitanInd/minerwatch/internal/interfaces"
)

// CommandID is a logical control operation exposed to operators
type CommandID string

const (
	CmdRestart      CommandID = "restart"
	CmdPowerOff     CommandID = "power-off"
	CmdSetPowerPct  CommandID = "set-power-pct"
	CmdUpdatePools  CommandID = "update-pools"
	CmdSetFrequency CommandID = "set-frequency"
	CmdEnable       CommandID = "enable"
	CmdDisable      CommandID = "disable"
	CmdFactoryReset CommandID = "factory-reset"
	CmdPSUInfo      CommandID = "psu-info"
	CmdVersion      CommandID = "version"
	CmdSummary      CommandID = "summary"
)

// protocol-level command names per logical id
var commandTable = map[CommandID]string{
	CmdRestart:      "restart_btminer",
	CmdPowerOff:     "power_off",
	CmdSetPowerPct:  "set_power_pct",
	CmdUpdatePools:  "update_pools",
	CmdSetFrequency: "set_target_freq",
	CmdEnable:       "enable_btminer_fast_boot",
	CmdDisable:      "disable_btminer_fast_boot",
	CmdFactoryReset: "factory_reset",
	CmdPSUInfo:      "get_psu",
	CmdVersion:      "get_version",
	CmdSummary:      "summary",
}

// mutating commands require the token handshake when a credential is supplied
var writeCommands = map[CommandID]bool{
	CmdRestart:      true,
	CmdPowerOff:     true,
	CmdSetPowerPct:  true,
	CmdUpdatePools:  true,
	CmdSetFrequency: true,
	CmdEnable:       true,
	CmdDisable:      true,
	CmdFactoryReset: true,
}

var failureSubstrings = []string{"invalid", "error", "failed", "denied"}

type CommandResult struct {
	Success bool                   `json:"success"`
	Message string                 `json:"message"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Dispatcher sends authenticated control commands to one device and classifies
// the result. Never lets an error escape its boundary: network and parse
// failures come back as a failure result with the error text as the message
type Dispatcher struct {
	client  *Client
	timeout time.Duration
	log     interfaces.ILogger
}

func NewDispatcher(client *Client, timeout time.Duration, log interfaces.ILogger) *Dispatcher {
	return &Dispatcher{
		client:  client,
		timeout: timeout,
		log:     log,
	}
}

// SendCommand maps a logical command id to its protocol command, performs the
// token handshake for mutating commands when a password is supplied, and
// classifies the device response
func (d *Dispatcher) SendCommand(ctx context.Context, addr Address, id CommandID, params map[string]interface{}, password string) CommandResult {
	protoCmd, ok := commandTable[id]
	if !ok {
		return CommandResult{Success: false, Message: fmt.Sprintf("unknown command %q", id)}
	}

	req := map[string]interface{}{"cmd": protoCmd}
	for k, v := range params {
		req[k] = v
	}

	if writeCommands[id] && password != "" {
		token, err := d.obtainToken(ctx, addr, password)
		if err != nil {
			return CommandResult{Success: false, Message: err.Error()}
		}
		req["token"] = token
	}

	payload, err := d.client.Probe(ctx, addr, req, d.timeout)
	if err != nil {
		return CommandResult{Success: false, Message: err.Error()}
	}

	ok, msg := classifyResponse(payload)
	return CommandResult{Success: ok, Message: msg, Payload: payload}
}

// obtainToken runs the salt/hash challenge-response. The proposed token is
// MD5(password + salt). Firmware responses to the exchange are inconsistent,
// some echo the token, some answer with a bare "status OK", so absence of an
// explicit rejection is treated as acceptance and the locally computed hash is
// reused as the bearer token for the command that follows.
// TODO: there is no server-side confirmation the token was accepted before
// use; surface handshake rejections to the operator once firmware responses
// settle down
func (d *Dispatcher) obtainToken(ctx context.Context, addr Address, password string) (string, error) {
	payload, err := d.client.Probe(ctx, addr, map[string]interface{}{"cmd": "get_token_msg"}, d.timeout)
	if err != nil {
		return "", err
	}

	src := telemetrySource(payload)
	salt := str(src, "salt", "Salt")
	newSalt := str(src, "newsalt", "new_salt")
	devTime := str(src, "time", "Time")

	sum := md5.Sum([]byte(password + salt))
	token := hex.EncodeToString(sum[:])

	confirm := map[string]interface{}{
		"cmd":   "get_token_msg",
		"token": token,
	}
	if newSalt != "" {
		confirm["newsalt"] = newSalt
	}
	if devTime != "" {
		confirm["time"] = devTime
	}

	resp, err := d.client.Probe(ctx, addr, confirm, d.timeout)
	if err != nil {
		return "", err
	}
	if ok, msg := classifyResponse(resp); !ok {
		return "", fmt.Errorf("token exchange rejected: %s", msg)
	}

	return token, nil
}

// classifyResponse extracts the status envelope and message string from the
// inconsistently shaped device response. Some firmware returns a nominally
// successful envelope while the human-readable message describes a rejection,
// hence the substring check on the message text
func classifyResponse(payload map[string]interface{}) (success bool, message string) {
	status, message := statusEnvelope(payload)

	if status == "E" {
		if message == "" {
			message = "device returned error status"
		}
		return false, message
	}

	lowered := strings.ToLower(message)
	for _, s := range failureSubstrings {
		if strings.Contains(lowered, s) {
			return false, message
		}
	}

	if message == "" {
		message = "OK"
	}
	return true, message
}

// statusEnvelope tolerates {"STATUS":[{...}]}, {"STATUS":{...}}, a flat object
// with STATUS/status string codes, and Msg as either object or string
func statusEnvelope(payload map[string]interface{}) (status, message string) {
	src := payload
	if arr, ok := payload["STATUS"].([]interface{}); ok && len(arr) > 0 {
		if obj, ok := arr[0].(map[string]interface{}); ok {
			src = obj
		}
	} else if obj, ok := payload["STATUS"].(map[string]interface{}); ok {
		src = obj
	}

	status = str(src, "STATUS", "status")
	message = str(src, "Msg", "msg", "Message", "message", "Description")

	if message == "" {
		if msgStr, ok := payload["Msg"].(string); ok {
			message = msgStr
		}
	}
	if message == "" {
		if raw, ok := payload["raw"].(string); ok {
			message = raw
		}
	}

	return status, message
}
