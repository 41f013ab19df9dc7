package network

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// DefaultDeploymentCacheSize bounds the number of accounts remembered as
// deployed.
const DefaultDeploymentCacheSize = 256

// DeploymentChecker reports whether code exists at an address.
type DeploymentChecker interface {
	IsDeployed(ctx context.Context, addr common.Address) (bool, error)
}

// DeploymentCache remembers accounts once they are seen deployed. Negative
// answers are never cached since an account may be deployed at any time.
type DeploymentCache struct {
	checker  DeploymentChecker
	deployed *lru.ARCCache // address → struct{}
}

// NewDeploymentCache wraps checker. A non-positive size selects
// DefaultDeploymentCacheSize.
func NewDeploymentCache(checker DeploymentChecker, size int) (*DeploymentCache, error) {
	if size <= 0 {
		size = DefaultDeploymentCacheSize
	}
	deployed, err := lru.NewARC(size)
	if err != nil {
		return nil, err
	}
	return &DeploymentCache{checker: checker, deployed: deployed}, nil
}

// IsDeployed answers from the cache, asking the wrapped checker on a miss.
func (c *DeploymentCache) IsDeployed(ctx context.Context, addr common.Address) (bool, error) {
	if c.deployed.Contains(addr) {
		return true, nil
	}
	ok, err := c.checker.IsDeployed(ctx, addr)
	if err != nil {
		return false, err
	}
	if ok {
		c.deployed.Add(addr, struct{}{})
	}
	return ok, nil
}
