package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/topicgen-backend/internal/app"
	"github.com/yungbote/topicgen-backend/internal/http/middleware"
)

func main() {
	issueToken := flag.String("issue-token", "", "print a signed access token for the given user id and exit")
	tokenTTL := flag.Duration("token-ttl", time.Hour, "lifetime of the token printed by -issue-token")
	flag.Parse()

	if *issueToken != "" {
		cfg, err := app.LoadConfig()
		if err != nil {
			fmt.Printf("Failed to load config: %v\n", err)
			os.Exit(1)
		}
		token, err := middleware.SignToken(cfg.JWTSecret, *issueToken, *tokenTTL)
		if err != nil {
			fmt.Printf("Failed to sign token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx := context.Background()
	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		a.Log.Error("Server exited with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	a.Log.Info("Server stopped")
}
