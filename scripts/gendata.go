// Use: go run ./scripts/gendata.go people.json 10000
// then: jsonload load --datastore-engine memory -k email,code -i people.json

package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

type Dept struct {
	Code  string `json:"code"`
	Title string `json:"title"`
}

type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type Friend struct {
	Email string `json:"email"`
}

type Person struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	ExtID    string   `json:"ext_id"`
	Dept     Dept     `json:"dept"`
	Location Point    `json:"location"`
	Friends  []Friend `json:"friends,omitempty"`
	Tags     []string `json:"tags"`
}

const totalDepts = 20

func main() {
	if len(os.Args) != 3 {
		log.Fatalf("usage: %s <output.json> <total documents>", os.Args[0])
	}

	argOutput := os.Args[1]
	argTotalDocs, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Panic(err)
	}

	if err := write(argOutput, argTotalDocs); err != nil {
		log.Panic(err)
	}
}

func generatePerson(i int) Person {
	d := i % totalDepts
	p := Person{
		Email: fmt.Sprintf("user%d@example.com", i),
		Name:  fmt.Sprintf("User %d", i),
		ExtID: ulid.Make().String(),
		Dept: Dept{
			Code:  fmt.Sprintf("D%03d", d),
			Title: fmt.Sprintf("Department %d", d),
		},
		Location: Point{
			Type:        "Point",
			Coordinates: [2]float64{rand.Float64()*360 - 180, rand.Float64()*180 - 90},
		},
		Tags: []string{"generated", fmt.Sprintf("cohort-%d", i%7)},
	}

	for f := 1; f <= 2 && i-f >= 0; f++ {
		p.Friends = append(p.Friends, Friend{Email: fmt.Sprintf("user%d@example.com", i-f)})
	}
	return p
}

func write(output string, totalDocs int) error {
	defer timeTrack(time.Now(), "write")
	log.Printf("writing %d documents to %s", totalDocs, output)

	file, err := os.OpenFile(output, os.O_RDWR|os.O_TRUNC|os.O_CREATE, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	for i := 0; i < totalDocs; i++ {
		if err := enc.Encode(generatePerson(i)); err != nil {
			return err
		}
	}

	return w.Flush()
}

func timeTrack(start time.Time, name string) {
	elapsed := time.Since(start)
	log.Printf("%s took %s", name, elapsed)
}
