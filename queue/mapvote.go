package queue

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"pickup-matchmaker/events"
)

// queueChecker is the slice of the queue service the vote needs: only queue
// participants may vote.
type queueChecker interface {
	IsInQueue(playerID string) bool
}

// MapVote tracks one vote per player against the current candidate set. The
// candidate set is the map pool minus entries on cooldown; it is refreshed
// whenever a vote is resolved or the pool changes.
type MapVote struct {
	pool  *MapPool
	queue queueChecker
	bus   *events.Bus

	mu         sync.Mutex
	votes      map[string]string // playerID -> map
	candidates []string

	unsubscribe []func()
}

func NewMapVote(pool *MapPool, queue queueChecker, bus *events.Bus) *MapVote {
	v := &MapVote{
		pool:  pool,
		queue: queue,
		bus:   bus,
		votes: make(map[string]string),
	}
	v.mu.Lock()
	v.refreshCandidatesLocked()
	v.mu.Unlock()

	v.unsubscribe = append(v.unsubscribe,
		bus.PlayerLeavesQueue.Subscribe(func(e events.PlayerLeavesQueue) {
			v.resetPlayerVote(e.PlayerID)
		}),
		bus.MapPoolChange.Subscribe(func(events.MapPoolChange) {
			v.reset()
		}),
	)
	return v
}

// Close cancels the vote's subscriptions.
func (v *MapVote) Close() {
	for _, cancel := range v.unsubscribe {
		cancel()
	}
}

// MapOptions returns the current candidate maps.
func (v *MapVote) MapOptions() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	options := make([]string, len(v.candidates))
	copy(options, v.candidates)
	return options
}

// VoteForMap records the player's vote, replacing any prior vote by the same
// player.
func (v *MapVote) VoteForMap(playerID, mapName string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.isCandidateLocked(mapName) {
		return fmt.Errorf("%w (%s)", ErrMapNotInThePool, mapName)
	}
	if !v.queue.IsInQueue(playerID) {
		return fmt.Errorf("%w (%s)", ErrPlayerNotInQueue, playerID)
	}

	v.votes[playerID] = mapName
	log.Debug().Str("playerId", playerID).Str("map", mapName).Msg("map vote")
	v.publishResultsLocked()
	return nil
}

// VoteCountForMap returns the number of votes currently cast for the map.
func (v *MapVote) VoteCountForMap(mapName string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, voted := range v.votes {
		if voted == mapName {
			count++
		}
	}
	return count
}

// Results lists the vote count for every candidate map.
func (v *MapVote) Results() []events.MapVoteResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resultsLocked()
}

// GetWinner resolves the vote: the candidate with the most votes wins, ties
// broken randomly among the tied set. Resolution clears all votes and rotates
// the pool cooldowns.
func (v *MapVote) GetWinner() (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.candidates) == 0 {
		return "", errors.New("no maps to vote for")
	}

	counts := make(map[string]int, len(v.candidates))
	for _, name := range v.candidates {
		counts[name] = 0
	}
	for _, voted := range v.votes {
		counts[voted]++
	}

	maxVotes := 0
	for _, count := range counts {
		if count > maxVotes {
			maxVotes = count
		}
	}
	var tied []string
	for _, name := range v.candidates {
		if counts[name] == maxVotes {
			tied = append(tied, name)
		}
	}
	winner := tied[rand.Intn(len(tied))]
	log.Info().Str("map", winner).Int("votes", maxVotes).Msg("map vote resolved")

	v.pool.markPlayed(winner)
	v.votes = make(map[string]string)
	v.refreshCandidatesLocked()
	v.publishResultsLocked()
	return winner, nil
}

func (v *MapVote) reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.votes = make(map[string]string)
	v.refreshCandidatesLocked()
	v.publishResultsLocked()
}

func (v *MapVote) resetPlayerVote(playerID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.votes[playerID]; !ok {
		return
	}
	delete(v.votes, playerID)
	v.publishResultsLocked()
}

func (v *MapVote) refreshCandidatesLocked() {
	v.candidates = v.candidates[:0]
	for _, entry := range v.pool.GetMaps() {
		if entry.Cooldown == 0 {
			v.candidates = append(v.candidates, entry.Name)
		}
	}
	sort.Strings(v.candidates)
}

func (v *MapVote) isCandidateLocked(mapName string) bool {
	for _, name := range v.candidates {
		if name == mapName {
			return true
		}
	}
	return false
}

func (v *MapVote) resultsLocked() []events.MapVoteResult {
	results := make([]events.MapVoteResult, len(v.candidates))
	for i, name := range v.candidates {
		results[i] = events.MapVoteResult{Map: name}
	}
	for _, voted := range v.votes {
		for i := range results {
			if results[i].Map == voted {
				results[i].VoteCount++
			}
		}
	}
	return results
}

func (v *MapVote) publishResultsLocked() {
	v.bus.MapVotesChange.Publish(events.MapVotesChange{Results: v.resultsLocked()})
}
