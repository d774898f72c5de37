package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/happybusride/booking-backend/internal/utils"
)

func main() {
	logger := logrus.New()

	secret, err := utils.GenerateJWTSecret()
	if err != nil {
		logger.WithError(err).Fatal("Failed to generate secret")
	}

	fmt.Fprintln(os.Stderr, "Add this to your .env file (never commit it):")
	fmt.Printf("JWT_SECRET=%s\n", secret)
}
