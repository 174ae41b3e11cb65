package session

import "fmt"

const rewardAlphabet = "UDLR"

// maxRewardAttempts bounds the collision retry loop.
const maxRewardAttempts = 50

var natoWords = [26]string{
	"Alpha", "Bravo", "Charlie", "Delta", "Echo", "Foxtrot", "Golf",
	"Hotel", "India", "Juliett", "Kilo", "Lima", "Mike", "November",
	"Oscar", "Papa", "Quebec", "Romeo", "Sierra", "Tango", "Uniform",
	"Victor", "Whiskey", "X-ray", "Yankee", "Zulu",
}

func directionValue(c byte) int {
	switch c {
	case 'U':
		return 1
	case 'D':
		return 2
	case 'L':
		return 3
	case 'R':
		return 4
	}
	return 0
}

// Checksum returns the "<NATO word>-<NN>" checksum of a direction code.
// The word is picked by the position-weighted sum mod 26; the number is a
// base-3 rolling hash mod 100.
func Checksum(code string) string {
	weighted := 0
	rolling := 0
	for i := 0; i < len(code); i++ {
		v := directionValue(code[i])
		weighted += v * (i + 1)
		rolling = (rolling*3 + v) % 100
	}
	return fmt.Sprintf("%s-%02d", natoWords[weighted%26], rolling)
}

// RewardHistory is a fixed ring of reward codes. Slot 0 is current.
type RewardHistory [RewardHistorySize]Reward

// Rotate shifts the history down one slot and fills slot 0 with a fresh code
// whose checksum differs from every other remembered code. It reports false
// if no unique checksum was found within the attempt budget; slot 0 then
// holds the last candidate.
func (h *RewardHistory) Rotate(rng Random) bool {
	copy(h[1:], h[:RewardHistorySize-1])

	for attempt := 0; attempt < maxRewardAttempts; attempt++ {
		code := make([]byte, RewardCodeLength)
		for i := range code {
			code[i] = rewardAlphabet[rng.Random(0, uint32(len(rewardAlphabet)-1))]
		}
		h[0] = Reward{Code: string(code), Checksum: Checksum(string(code))}
		if !h.collides(0) {
			return true
		}
	}
	return false
}

// collides reports whether slot i shares its checksum with any other slot.
func (h *RewardHistory) collides(i int) bool {
	for j := range h {
		if j == i || h[j].Checksum == "" {
			continue
		}
		if h[j].Checksum == h[i].Checksum {
			return true
		}
	}
	return false
}
