package game

// Task is a stealth-mode catalog entry. Bonus-tier tasks are the hard ones; a
// player holds at most one at a time.
type Task struct {
	ID    string `json:"id"`
	Text  string `json:"text"`
	Hint  string `json:"hint,omitempty"`
	Bonus bool   `json:"bonus,omitempty"`
}

// Pack is a named catalog chosen once per game.
type Pack struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Mode        Mode        `json:"mode"`
	Type        Type        `json:"type"`
	Tasks       []Task      `json:"tasks,omitempty"`
	Challenges  []Challenge `json:"challenges,omitempty"`
}

// Catalog is a lookup of packs by id.
type Catalog map[string]Pack

// Pack returns the pack with the given id.
func (c Catalog) Pack(id string) (Pack, bool) {
	p, ok := c[id]
	return p, ok
}

// Summaries returns every pack without its task or challenge lists, for the
// pack picker.
func (c Catalog) Summaries() []Pack {
	out := make([]Pack, 0, len(c))
	for _, id := range packOrder {
		p, ok := c[id]
		if !ok {
			continue
		}
		p.Tasks = nil
		p.Challenges = nil
		out = append(out, p)
	}
	return out
}

var packOrder = []string{"classic", "office", "holiday"}

// DefaultCatalog returns the built-in packs.
func DefaultCatalog() Catalog {
	return Catalog{
		"classic": {
			ID:          "classic",
			Name:        "Classic",
			Description: "Sneaky everyday tasks for any get-together.",
			Mode:        ModeStealth,
			Type:        TypeTraditional,
			Tasks: []Task{
				{ID: "classic-01", Text: "Get your target to say the word \"banana\".", Hint: "Bring up smoothies."},
				{ID: "classic-02", Text: "Get your target to give you a high five."},
				{ID: "classic-03", Text: "Get your target to hold something for you for at least ten seconds."},
				{ID: "classic-04", Text: "Get your target to tell you what they had for breakfast."},
				{ID: "classic-05", Text: "Get your target to check the time for you."},
				{ID: "classic-06", Text: "Get your target to sing at least one line of a song.", Hint: "Hum something catchy and stop halfway."},
				{ID: "classic-07", Text: "Get your target to take a photo of you."},
				{ID: "classic-08", Text: "Get your target to say your name three times in one conversation."},
				{ID: "classic-09", Text: "Get your target to stand on one foot."},
				{ID: "classic-10", Text: "Get your target to recommend you a movie."},
				{ID: "classic-11", Text: "Get your target to swap seats with you."},
				{ID: "classic-12", Text: "Get your target to spell a word out loud."},
				{ID: "classic-13", Text: "Get your target to compliment your shoes.", Hint: "Look down at them a lot."},
				{ID: "classic-14", Text: "Get your target to pour you a drink."},
				{ID: "classic-15", Text: "Get your target to do an impression of someone."},
				{ID: "classic-16", Text: "Get your target to count to five out loud."},
				{ID: "classic-17", Text: "Get your target to tell you a joke."},
				{ID: "classic-18", Text: "Get your target to name three animals that start with the letter P."},
				{ID: "classic-19", Text: "Get your target to fist bump you twice within a minute."},
				{ID: "classic-20", Text: "Get your target to agree that pineapple belongs on pizza."},
				{ID: "classic-21", Text: "Get your target to do a little dance.", Bonus: true},
				{ID: "classic-22", Text: "Get your target to speak in an accent for a full sentence.", Bonus: true},
				{ID: "classic-23", Text: "Get your target to wear something of yours.", Bonus: true},
				{ID: "classic-24", Text: "Get your target to hug someone else in the room.", Bonus: true},
			},
		},
		"office": {
			ID:          "office",
			Name:        "Office Party",
			Description: "Work-safe tasks for team events.",
			Mode:        ModeStealth,
			Type:        TypeTraditional,
			Tasks: []Task{
				{ID: "office-01", Text: "Get your target to say \"synergy\"."},
				{ID: "office-02", Text: "Get your target to describe their commute."},
				{ID: "office-03", Text: "Get your target to lend you a pen."},
				{ID: "office-04", Text: "Get your target to say \"let's circle back\"."},
				{ID: "office-05", Text: "Get your target to show you their phone wallpaper."},
				{ID: "office-06", Text: "Get your target to name their favourite snack from the break room."},
				{ID: "office-07", Text: "Get your target to explain what they do in one sentence."},
				{ID: "office-08", Text: "Get your target to agree to a made-up meeting."},
				{ID: "office-09", Text: "Get your target to use a sports metaphor.", Hint: "Ask how the quarter is going."},
				{ID: "office-10", Text: "Get your target to refill your cup."},
				{ID: "office-11", Text: "Get your target to tell you about their last holiday."},
				{ID: "office-12", Text: "Get your target to say the name of a spreadsheet function."},
				{ID: "office-13", Text: "Get your target to stand up and stretch with you."},
				{ID: "office-14", Text: "Get your target to guess your birthday month."},
				{ID: "office-15", Text: "Get your target to give a short toast.", Bonus: true},
				{ID: "office-16", Text: "Get your target to pitch a terrible startup idea.", Bonus: true},
				{ID: "office-17", Text: "Get your target to read a fortune cookie out loud.", Bonus: true},
			},
		},
		"holiday": {
			ID:          "holiday",
			Name:        "Holiday Challenge",
			Description: "Race everyone else to finish festive challenges. First one gets gold.",
			Mode:        ModeRace,
			Type:        TypeHolidayChallenge,
			Challenges: []Challenge{
				{ID: "holiday-01", Text: "Wear something red and green.", RequiresProof: true},
				{ID: "holiday-02", Text: "Build a tiny snowman out of anything.", RequiresProof: true},
				{ID: "holiday-03", Text: "Get three people to sing a carol with you."},
				{ID: "holiday-04", Text: "Find an ornament shaped like an animal.", RequiresProof: true},
				{ID: "holiday-05", Text: "Wrap an object without using tape."},
				{ID: "holiday-06", Text: "Take a group photo with at least four people.", RequiresProof: true},
				{ID: "holiday-07", Text: "Tell a holiday memory to someone you just met."},
				{ID: "holiday-08", Text: "Make a paper snowflake.", RequiresProof: true},
				{ID: "holiday-09", Text: "Balance a candy cane on your nose for five seconds."},
				{ID: "holiday-10", Text: "Find someone wearing a holiday sweater.", RequiresProof: true},
				{ID: "holiday-11", Text: "Teach someone a holiday word in another language."},
				{ID: "holiday-12", Text: "Draw a reindeer with your eyes closed.", RequiresProof: true},
				{ID: "holiday-13", Text: "Give a stranger at the party a compliment."},
				{ID: "holiday-14", Text: "Stack five cookies into a tower.", RequiresProof: true},
				{ID: "holiday-15", Text: "Name all of Santa's reindeer from memory."},
				{ID: "holiday-16", Text: "Get someone to pull a cracker with you."},
			},
		},
	}
}
