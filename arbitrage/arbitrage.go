// Package arbitrage is a standalone analysis utility: an index-based
// pool graph arena with bounded-hop cycle search, offered as an
// optional input to the strategy dispatcher's monitored-token
// configuration. It is not wired into the hot flashblock path — C5
// dispatch never calls into it directly.
package arbitrage

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Protocol names a supported DEX implementation; gas estimates below
// are per-protocol swap-call costs.
type Protocol int

const (
	ProtocolUniswapV2 Protocol = iota
	ProtocolUniswapV3
	ProtocolUniswapV4
	ProtocolAerodrome
)

func (p Protocol) gasEstimate() uint64 {
	switch p {
	case ProtocolUniswapV3:
		return 150_000
	case ProtocolUniswapV4:
		return 120_000
	case ProtocolAerodrome:
		return 110_000
	default:
		return 100_000
	}
}

// Pool is one DEX liquidity pool's known reserves.
type Pool struct {
	Protocol Protocol
	Address  common.Address
	Token0   common.Address
	Token1   common.Address
	Reserve0 *big.Int
	Reserve1 *big.Int
	FeeBps   uint32 // basis points, e.g. 30 = 0.3%
}

// PairKey is an unordered token-pair key, always stored with the
// lexicographically smaller address first.
type PairKey struct {
	A common.Address
	B common.Address
}

func pairKey(a, b common.Address) PairKey {
	if string(a.Bytes()) > string(b.Bytes()) {
		a, b = b, a
	}
	return PairKey{A: a, B: b}
}

// Route is one executed hop sequence through the arena's pools.
type Route struct {
	PoolIndices []int
	TokenPath   []common.Address
	AmountIn    *big.Int
	ExpectedOut *big.Int
	GasEstimate uint64
}

// Path is a candidate arbitrage cycle with its profit accounting.
type Path struct {
	Route     Route
	Profit    *big.Int
	GasCost   *big.Int
	NetProfit *big.Int
}

// Arena is an index-based pool graph: pools live in a flat slice, and
// both the pair lookup and the token adjacency are maps of indices into
// that slice, avoiding the cyclic pointer graph a naive token-to-token
// adjacency would require.
type Arena struct {
	pools      []Pool
	byPair     map[PairKey][]int
	adjacency  map[common.Address]map[int]struct{}
	maxHops    int
}

// NewArena creates an empty arena bounding cycle search to maxHops.
func NewArena(maxHops int) *Arena {
	return &Arena{
		byPair:    make(map[PairKey][]int),
		adjacency: make(map[common.Address]map[int]struct{}),
		maxHops:   maxHops,
	}
}

// AddPool registers a pool and returns its arena index.
func (a *Arena) AddPool(p Pool) int {
	idx := len(a.pools)
	a.pools = append(a.pools, p)

	key := pairKey(p.Token0, p.Token1)
	a.byPair[key] = append(a.byPair[key], idx)

	for _, tok := range [2]common.Address{p.Token0, p.Token1} {
		if a.adjacency[tok] == nil {
			a.adjacency[tok] = make(map[int]struct{})
		}
		a.adjacency[tok][idx] = struct{}{}
	}
	return idx
}

// FindArbitragePaths searches for profitable cycles starting and ending
// at startToken, up to the arena's hop bound, and returns them sorted
// by descending net profit.
func (a *Arena) FindArbitragePaths(startToken common.Address, amountIn, gasPrice *big.Int) []Path {
	var paths []Path
	for _, cycle := range a.findCycles(startToken) {
		route, ok := a.buildRoute(cycle, amountIn)
		if !ok {
			continue
		}
		gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(route.GasEstimate))
		profit := big.NewInt(0)
		if route.ExpectedOut.Cmp(amountIn) > 0 {
			profit = new(big.Int).Sub(route.ExpectedOut, amountIn)
		}
		if profit.Cmp(gasCost) <= 0 {
			continue
		}
		paths = append(paths, Path{
			Route:     route,
			Profit:    profit,
			GasCost:   gasCost,
			NetProfit: new(big.Int).Sub(profit, gasCost),
		})
	}

	sortPathsByNetProfitDesc(paths)
	return paths
}

func sortPathsByNetProfitDesc(paths []Path) {
	for i := 1; i < len(paths); i++ {
		for j := i; j > 0 && paths[j].NetProfit.Cmp(paths[j-1].NetProfit) > 0; j-- {
			paths[j], paths[j-1] = paths[j-1], paths[j]
		}
	}
}

// findCycles returns every token path of length in [2, maxHops] that
// starts and ends at startToken, via a bounded depth-first search over
// the token adjacency.
func (a *Arena) findCycles(startToken common.Address) [][]common.Address {
	var cycles [][]common.Address
	visited := map[common.Address]bool{}
	path := []common.Address{startToken}
	a.dfsCycles(startToken, startToken, visited, path, &cycles, 0)
	return cycles
}

func (a *Arena) dfsCycles(start, current common.Address, visited map[common.Address]bool, path []common.Address, cycles *[][]common.Address, depth int) {
	if depth > 0 && depth <= a.maxHops && current == start {
		cp := make([]common.Address, len(path))
		copy(cp, path)
		*cycles = append(*cycles, cp)
		return
	}
	if depth >= a.maxHops {
		return
	}

	for idx := range a.adjacency[current] {
		pool := a.pools[idx]
		neighbor := pool.Token1
		if current == pool.Token1 {
			neighbor = pool.Token0
		}
		if depth != 0 && visited[neighbor] && !(neighbor == start && depth >= 2) {
			continue
		}
		visited[neighbor] = true
		a.dfsCycles(start, neighbor, visited, append(path, neighbor), cycles, depth+1)
		if neighbor != start {
			visited[neighbor] = false
		}
	}
}

// buildRoute greedily picks, for each hop, the pool yielding the
// highest output among every pool on that token pair.
func (a *Arena) buildRoute(tokenPath []common.Address, amountIn *big.Int) (Route, bool) {
	indices := make([]int, 0, len(tokenPath)-1)
	current := new(big.Int).Set(amountIn)
	var gasEstimate uint64

	for i := 0; i < len(tokenPath)-1; i++ {
		tokenIn, tokenOut := tokenPath[i], tokenPath[i+1]
		candidates := a.byPair[pairKey(tokenIn, tokenOut)]
		if len(candidates) == 0 {
			return Route{}, false
		}

		bestIdx := -1
		bestOut := big.NewInt(0)
		for _, idx := range candidates {
			out := swapOutput(a.pools[idx], tokenIn, current)
			if out.Cmp(bestOut) > 0 {
				bestOut = out
				bestIdx = idx
			}
		}
		if bestIdx < 0 {
			return Route{}, false
		}

		indices = append(indices, bestIdx)
		gasEstimate += a.pools[bestIdx].Protocol.gasEstimate()
		current = bestOut
	}

	return Route{
		PoolIndices: indices,
		TokenPath:   tokenPath,
		AmountIn:    amountIn,
		ExpectedOut: current,
		GasEstimate: gasEstimate,
	}, true
}

// swapOutput applies the constant-product formula with the pool's fee
// deducted up front, UniswapV2-style.
func swapOutput(pool Pool, tokenIn common.Address, amountIn *big.Int) *big.Int {
	reserveIn, reserveOut := pool.Reserve0, pool.Reserve1
	if tokenIn != pool.Token0 {
		reserveIn, reserveOut = pool.Reserve1, pool.Reserve0
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
		return big.NewInt(0)
	}

	feeMultiplier := big.NewInt(10_000 - int64(pool.FeeBps))
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)
	amountInWithFee.Div(amountInWithFee, big.NewInt(10_000))

	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(reserveIn, amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return numerator.Div(numerator, denominator)
}
