// Command weather-harness smoke-tests a running gateway and prints each response.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
)

type check struct {
	name string
	path string
}

func main() {
	host := getenvDefault("WEATHER_API_HOST", "localhost")
	port := getenvDefault("WEATHER_API_PORT", "3000")
	apiKey := os.Getenv("WEATHER_API_KEY")
	base := fmt.Sprintf("http://%s:%s", host, port)

	checks := []check{
		{name: "Health", path: "/health"},
		{name: "Current weather", path: "/weather/current?city=London"},
		{name: "Forecast", path: "/weather/forecast?city=London&days=3"},
	}

	fmt.Println("Weather API Test Harness")
	fmt.Println("Target:", base)
	if apiKey != "" {
		fmt.Println("API Key: set")
	} else {
		fmt.Println("API Key: none")
	}
	fmt.Println("---")

	failed := 0
	for _, c := range checks {
		agent := fiber.Get(base + c.path).
			Set(fiber.HeaderAccept, fiber.MIMEApplicationJSON).
			Timeout(15 * time.Second)
		if apiKey != "" {
			agent.Set(fiber.HeaderAuthorization, "Bearer "+apiKey)
		}

		status, body, errs := agent.Bytes()
		if len(errs) > 0 {
			log.Printf("%s: ERROR - %v", c.name, errs[0])
			failed++
			continue
		}

		fmt.Printf("%s: %d\n", c.name, status)
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, body, "", "  "); err != nil {
			fmt.Println(string(body))
		} else {
			fmt.Println(pretty.String())
		}
		fmt.Println("---")
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
