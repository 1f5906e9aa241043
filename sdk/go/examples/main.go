package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"UB-Client/sdk/go/ubclient"
)

// Prints the platform status and the latest readable post from a running ubd.
func main() {
	baseURL := os.Getenv("UBD_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8080"
	}
	client, err := ubclient.NewClient(baseURL, nil)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("UB %s: %d posts, you are %s\n", status.BulletinAddress, status.TotalPosts, status.UserStatus)

	for idx := status.TotalPosts; idx > 0; idx-- {
		post, err := client.Post(ctx, idx-1)
		if errors.Is(err, ubclient.ErrSubscriptionRequired) {
			continue
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("#%d %s by %s (%s)\n", post.Index, post.Title, post.Author, post.TypeLabel)
		return
	}
	fmt.Println("no readable post")
}
