// Command cli plays a match in the terminal. Every seat shares the keyboard:
// type "<seat> <command>" for a private command, or "<seat> ! <command>" to
// say it in the group channel.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/minaorangina/gamehost/engine"
	"github.com/minaorangina/gamehost/games"
	"github.com/minaorangina/gamehost/messenger"
	"go.uber.org/zap"
)

func main() {
	gameName := flag.String("game", "highcard", "game to play")
	seats := flag.Int("seats", 2, "number of seats")
	computers := flag.Int("computers", 0, "number of trailing computer seats")
	rounds := flag.String("rounds", "", "rounds to play, if the game has rounds")
	debug := flag.Bool("debug", false, "log engine events")
	flag.Parse()

	game, err := games.Default().Find(*gameName)
	if err != nil {
		log.Fatal(err.Error())
	}

	logger := zap.NewNop()
	if *debug {
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatal(err.Error())
		}
	}

	cpus := []int{}
	for i := *seats - *computers; i < *seats; i++ {
		cpus = append(cpus, i)
	}
	values := map[string]string{}
	if *rounds != "" {
		values["rounds"] = *rounds
	}

	m, err := engine.NewMatch(engine.MatchOpts{
		Game:      game,
		Seats:     *seats,
		Computers: cpus,
		Values:    values,
		Transport: messenger.NewWriterTransport(os.Stdout),
		Logger:    logger,
	})
	if err != nil {
		log.Fatal(err.Error())
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		log.Fatalf("could not start game: %v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for !m.Over() && scanner.Scan() {
		if err := handleLine(m, scanner.Text()); err != nil {
			fmt.Println(err)
		}
	}

	if scores, ok := m.Scores(); ok {
		fmt.Println("Final scores:")
		for seat, score := range scores {
			fmt.Printf("  seat %d: %d\n", seat, score)
		}
	}
}

func handleLine(m *engine.Match, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	seat, err := strconv.Atoi(fields[0])
	if err != nil {
		return fmt.Errorf("start with a seat number, e.g. \"0 help\"")
	}

	rest := fields[1:]
	public := len(rest) > 0 && rest[0] == "!"
	if public {
		rest = rest[1:]
	}

	switch strings.Join(rest, " ") {
	case "":
		return nil
	case "leave":
		return m.Leave(seat)
	case "auto":
		_, err := m.Act(seat)
		return err
	}

	res, err := m.Request(seat, public, strings.Join(rest, " "))
	if err != nil {
		return err
	}
	fmt.Printf("[seat %d] %s\n", seat, res)
	return nil
}
