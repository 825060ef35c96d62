package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/transitfeeds/mta-arrivals/internal/models"
	"github.com/transitfeeds/mta-arrivals/pkg/mta"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "mta-arrivals",
		Usage: "Query NYC subway stations and upcoming trains from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-key", EnvVars: []string{"MTA_API_KEY"}, Usage: "MTA API key"},
			&cli.StringFlag{Name: "stops-file", Value: "data/stops.txt", Usage: "GTFS stops.txt file"},
			&cli.Float64Flag{Name: "lat", Value: 40.7527, Usage: "Latitude"},
			&cli.Float64Flag{Name: "lon", Value: -73.9772, Usage: "Longitude"},
			&cli.StringFlag{Name: "route", Usage: "Route to query"},
			&cli.StringFlag{Name: "station", Usage: "Station or stop ID to query"},
			&cli.StringFlag{Name: "search", Usage: "Search stations by name"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Send()
	}
}

func run(c *cli.Context) error {
	config := mta.DefaultConfig()
	config.APIKey = c.String("api-key")
	config.StopsFile = c.String("stops-file")

	client, err := mta.NewLocal(config)
	if err != nil {
		return err
	}
	defer client.Close()

	// Offline queries first, no need to wait for feed data
	if query := c.String("search"); query != "" {
		matches, err := client.SearchStations(query)
		if err != nil {
			return err
		}
		fmt.Printf("Stations matching %q:\n", query)
		for _, station := range matches {
			fmt.Printf("- %s (%s)\n", station.Name, station.ID)
		}
		return nil
	}

	// Allow feed manager time to populate initial data
	fmt.Println("Waiting for initial data...")
	time.Sleep(2 * time.Second)

	if id := c.String("station"); id != "" {
		return printStationArrivals(client, id)
	}

	if route := c.String("route"); route != "" {
		stations, err := client.GetStationsByRoute(route)
		if err != nil {
			return err
		}
		fmt.Printf("\nStations on route %s:\n", route)
		for _, station := range stations {
			fmt.Printf("- %s (%s)\n", station.Name, station.ID)
		}
		return nil
	}

	// Default location-based query mode
	stations, err := client.GetStationsByLocation(c.Float64("lat"), c.Float64("lon"), 5)
	if err != nil {
		return err
	}

	fmt.Printf("\nNearest stations to (%.4f, %.4f):\n", c.Float64("lat"), c.Float64("lon"))
	for _, station := range stations {
		fmt.Printf("\n%s (%s)\n", station.Name, station.ID)
		fmt.Printf("  Routes: %v\n", station.Routes)
		printTrains("Northbound", station.Trains.North)
		printTrains("Southbound", station.Trains.South)
	}

	fmt.Printf("\nLast real-time update: %s\n", client.GetLastUpdate().Format("3:04 PM"))
	if staticUpdate := client.GetLastStaticUpdate(); !staticUpdate.IsZero() {
		fmt.Printf("Last static data update: %s\n", staticUpdate.Format("3:04 PM"))
	}
	return nil
}

func printStationArrivals(client mta.Client, id string) error {
	info, err := client.GetStopInfo(id)
	if err != nil {
		return err
	}

	station, err := client.GetStation(info.StationID)
	if err != nil {
		return err
	}

	label := station.Name
	if info.Direction != "" {
		label = fmt.Sprintf("%s - %s (%s)", station.Name, info.Direction, id)
	}
	fmt.Printf("\n%s\n", label)

	printTrains("Northbound", station.Trains.North)
	printTrains("Southbound", station.Trains.South)

	if len(station.Trains.North) == 0 && len(station.Trains.South) == 0 {
		fmt.Println("  No trains found in the lookahead window")
	}
	return nil
}

func printTrains(heading string, trains []models.Train) {
	if len(trains) == 0 {
		return
	}
	fmt.Printf("  %s:\n", heading)
	for _, train := range trains[:min(3, len(trains))] {
		fmt.Printf("    %s - %s\n", train.Route, train.Time.Format("3:04 PM"))
	}
}
