package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"

	"github.com/happybusride/booking-backend/internal/models"
)

// ParseDeviceInfo turns a User-Agent header into the device summary stored on
// a booking: device (mobile, tablet, desktop, bot), os, browser and mobile.
// An empty header yields nil so nothing is stored.
func ParseDeviceInfo(userAgent string) models.DeviceInfo {
	if strings.TrimSpace(userAgent) == "" {
		return nil
	}

	parser := ua.New(userAgent)
	browser, version := parser.Browser()
	if browser == "" {
		browser = "Unknown"
	} else if version != "" {
		browser += " " + version
	}

	return models.DeviceInfo{
		"device":  deviceType(parser, userAgent),
		"os":      osName(parser),
		"browser": browser,
		"mobile":  parser.Mobile(),
	}
}

func deviceType(parser *ua.UserAgent, raw string) string {
	switch {
	case parser.Bot():
		return "bot"
	case parser.Mobile() && isTablet(raw):
		return "tablet"
	case parser.Mobile():
		return "mobile"
	default:
		return "desktop"
	}
}

var tabletIndicators = []string{"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10", "xoom", "sm-t"}

func isTablet(userAgent string) bool {
	lower := strings.ToLower(userAgent)
	for _, indicator := range tabletIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}
