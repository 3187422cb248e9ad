// Example: Using the sqlrunner HTTP API
//
// This example opens a session, runs a buffer, switches catalog and closes the
// session over HTTP.
//
// Start the server:
//
//	go run ./cmd/sqlrunner serve
//
// Then run this example:
//
//	go run ./example/restapi
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/nnnkkk7/sqlrunner/server/types"
)

var baseURL = getBaseURL()

func getBaseURL() string {
	host := os.Getenv("SQLRUNNER_HOST")
	if host == "" {
		host = "localhost:8080"
	}
	return fmt.Sprintf("http://%s/api/v1", host)
}

func main() {
	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	var created types.SessionResponse
	if err := call(http.MethodPost, "/sessions", types.CreateSessionRequest{Connect: true}, &created); err != nil {
		lg.Fatal("failed to create session", zap.Error(err))
	}
	fmt.Printf("Session: %s\n\n", created.SessionID)
	base := "/sessions/" + created.SessionID
	defer func() {
		if err := call(http.MethodDelete, base, nil, nil); err != nil {
			lg.Warn("failed to close session", zap.Error(err))
		}
	}()

	var run types.ResultsResponse
	buffer := "ATTACH ':memory:' AS scratch;\nCREATE TABLE scratch.notes (body VARCHAR);\nINSERT INTO scratch.notes VALUES ('hello');"
	if err := call(http.MethodPost, base+"/run", types.RunRequest{Text: buffer}, &run); err != nil {
		lg.Fatal("failed to run buffer", zap.Error(err))
	}
	for _, res := range run.Results {
		fmt.Printf("[%s] %v\n", res.Status, res.Messages)
	}

	var switched types.ResultResponse
	if err := call(http.MethodPost, base+"/catalog", types.CatalogRequest{Catalog: "scratch"}, &switched); err != nil {
		lg.Fatal("failed to switch catalog", zap.Error(err))
	}
	fmt.Printf("\n[%s] %v\n", switched.Result.Status, switched.Result.Messages)

	var selected types.ResultResponse
	if err := call(http.MethodPost, base+"/statements", types.StatementRequest{Statement: "SELECT body FROM notes", TimeoutMs: 5000}, &selected); err != nil {
		lg.Fatal("failed to query", zap.Error(err))
	}
	fmt.Printf("\n[%s] rows=%v\n", selected.Result.Status, selected.Result.Rows)
}

// call sends body as JSON and decodes the response into out when it is set.
func call(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
