// Command predict is a manual test client: it uploads an image to a
// running detection server and pretty-prints the JSON response.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

func main() {
	serverURL := flag.String("server", "http://localhost:5000", "detection server base URL")
	imagePath := flag.String("image", "", "path to the image to upload")
	flag.Parse()

	if *imagePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*imagePath)
	if err != nil {
		log.Fatalf("read image: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("image", filepath.Base(*imagePath))
	if err != nil {
		log.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		log.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		log.Fatalf("close form writer: %v", err)
	}

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Post(*serverURL+"/predict", writer.FormDataContentType(), &body)
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatalf("read response: %v", err)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}

	fmt.Printf("HTTP %d\n%s\n", resp.StatusCode, pretty.String())
}
