// Command smoke-vote exercises a running API end to end: login, look up an
// election by join code, cast a ballot, verify the double-submit conflict,
// and read the aggregated results back.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

func main() {
	base := os.Getenv("SAYLAU_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	studentID := os.Getenv("SAYLAU_SMOKE_STUDENT_ID")
	password := os.Getenv("SAYLAU_SMOKE_PASSWORD")
	code := os.Getenv("SAYLAU_SMOKE_CODE")
	if studentID == "" || password == "" || code == "" {
		log.Fatal("SAYLAU_SMOKE_STUDENT_ID, SAYLAU_SMOKE_PASSWORD and SAYLAU_SMOKE_CODE are required")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var login struct {
		Data struct {
			Token string `json:"token"`
			User  struct {
				ID int `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	status := post(client, base+"/auth/login", "",
		map[string]any{"studentId": studentID, "password": password}, &login)
	if status != http.StatusOK {
		log.Fatalf("login: unexpected status %d", status)
	}
	token := login.Data.Token

	var elections struct {
		Data []struct {
			ID     int    `json:"id"`
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"data"`
	}
	status = get(client, base+"/elections?code="+code, "", &elections)
	if status != http.StatusOK || len(elections.Data) == 0 {
		log.Fatalf("election lookup: status %d, %d results", status, len(elections.Data))
	}
	electionID := elections.Data[0].ID
	if elections.Data[0].Status != "open" {
		log.Fatalf("election %d is %s, not open", electionID, elections.Data[0].Status)
	}

	var positions struct {
		Data []struct {
			ID int `json:"id"`
		} `json:"data"`
	}
	status = get(client, fmt.Sprintf("%s/positions?electionId=%d", base, electionID), "", &positions)
	if status != http.StatusOK || len(positions.Data) == 0 {
		log.Fatalf("positions: status %d, %d results", status, len(positions.Data))
	}
	positionID := positions.Data[0].ID

	var candidates struct {
		Data []struct {
			ID int `json:"id"`
		} `json:"data"`
	}
	status = get(client, fmt.Sprintf("%s/candidates?positionId=%d", base, positionID), "", &candidates)
	if status != http.StatusOK || len(candidates.Data) == 0 {
		log.Fatalf("candidates: status %d, %d results", status, len(candidates.Data))
	}
	candidateID := candidates.Data[0].ID

	ballot := map[string]any{
		"electionId":  electionID,
		"positionId":  positionID,
		"candidateId": candidateID,
	}
	status = post(client, base+"/votes", token, ballot, &struct{}{})
	switch status {
	case http.StatusCreated:
		// first ballot for this voter
	case http.StatusConflict:
		log.Printf("voter already cast a ballot for position %d, continuing", positionID)
	default:
		log.Fatalf("cast vote: unexpected status %d", status)
	}

	status = post(client, base+"/votes", token, ballot, &struct{}{})
	if status != http.StatusConflict {
		log.Fatalf("double submit: want 409, got %d", status)
	}

	var results struct {
		Data struct {
			TotalVotes int `json:"totalVotes"`
			ByPosition []struct {
				PositionID int `json:"positionId"`
			} `json:"byPosition"`
		} `json:"data"`
	}
	status = get(client, fmt.Sprintf("%s/results?electionId=%d", base, electionID), "", &results)
	if status != http.StatusOK {
		log.Fatalf("results: unexpected status %d", status)
	}
	if results.Data.TotalVotes < 1 {
		log.Fatalf("results: expected at least one counted voter, got %d", results.Data.TotalVotes)
	}

	fmt.Printf("✅ vote smoke test passed: election=%d position=%d totalVotes=%d\n",
		electionID, positionID, results.Data.TotalVotes)
}

func get(client *http.Client, url, token string, out any) int {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	return do(client, req, token, out)
}

func post(client *http.Client, url, token string, body, out any) int {
	raw, err := json.Marshal(body)
	if err != nil {
		log.Fatalf("marshal body: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		log.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return do(client, req, token, out)
}

func do(client *http.Client, req *http.Request, token string, out any) int {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	_ = json.NewDecoder(resp.Body).Decode(out)
	return resp.StatusCode
}
