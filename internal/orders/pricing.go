package orders

import (
	"fmt"
	"math"
)

// Fixed price tables, all amounts in EUR. These are versioned configuration
// data, not user input; every lookup miss rejects the order.
var (
	treeMultiplier = map[Tree]float64{
		TreeNordmann: 1,
	}

	sizeBasePrice = map[Size]float64{
		SizeSmall:  35.87,
		SizeMedium: 49.92,
		SizeLarge:  65.76,
		SizeXLarge: 79.89,
	}

	packagePrice = map[Package]float64{
		PackageBasic: 33.23,
		PackageExtra: 41.36,
		PackageFull:  55.78,
	}

	deliveryPrice = map[Delivery]float64{
		DeliveryStandard: 0,
		DeliveryFast:     8.85,
		DeliveryExpress:  24.67,
	}
)

const treeStandPrice = 35.99

// CalculatePrice derives the order total from the selection alone:
// size base price scaled by the tree multiplier, plus package, delivery and
// the optional tree stand. Rounded to 2 decimals.
func CalculatePrice(tree Tree, size Size, pkg Package, delivery Delivery, treeStand bool) (float64, error) {
	multiplier, ok := treeMultiplier[tree]
	if !ok {
		return 0, fmt.Errorf("no price for tree %q", tree)
	}
	base, ok := sizeBasePrice[size]
	if !ok {
		return 0, fmt.Errorf("no price for size %q", size)
	}
	pkgPrice, ok := packagePrice[pkg]
	if !ok {
		return 0, fmt.Errorf("no price for package %q", pkg)
	}
	delPrice, ok := deliveryPrice[delivery]
	if !ok {
		return 0, fmt.Errorf("no price for delivery %q", delivery)
	}

	total := base*multiplier + pkgPrice + delPrice
	if treeStand {
		total += treeStandPrice
	}

	return math.Round(total*100) / 100, nil
}
