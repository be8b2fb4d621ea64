package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"relay/internal/api"
	"relay/internal/config"
)

func AddUser(name string, cfg *config.Config) error {
	var result api.UserResponse
	if err := post(cfg, "/admin/users", api.AddUserRequest{Name: name}, &result); err != nil {
		return fmt.Errorf("failed to add user: %w", err)
	}

	fmt.Printf("\nUser Created Successfully!\n")
	fmt.Printf("Name:        %s\n", result.User.Name)
	fmt.Printf("User ID:     %s\n", result.User.ID)
	fmt.Printf("Connect URL: %s\n\n", wsURL(cfg.BaseURL))
	fmt.Println("Announce this user ID after connecting to go online.")
	return nil
}

// AddGroup creates a group with adminID as its first member.
func AddGroup(name, adminID string, memberIDs []string, cfg *config.Config) error {
	var result api.GroupResponse
	req := api.AddGroupRequest{Name: name, AdminID: adminID, MemberIDs: memberIDs}
	if err := post(cfg, "/admin/groups", req, &result); err != nil {
		return fmt.Errorf("failed to add group: %w", err)
	}

	fmt.Printf("\nGroup Created Successfully!\n")
	fmt.Printf("Name:     %s\n", result.Group.Name)
	fmt.Printf("Group ID: %s\n", result.Group.ID)
	fmt.Printf("Members:  %s\n", strings.Join(result.Group.MemberIDs(), ", "))
	return nil
}

func post(cfg *config.Config, path string, body, result any) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("http://%s%s", cfg.AdminAddr, path)
	resp, err := http.Post(url, "application/json", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func wsURL(baseURL string) string {
	base := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws"
}
