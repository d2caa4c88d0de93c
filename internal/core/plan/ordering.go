package plan

import (
	"github.com/artpar/stackd/internal/core/stack"
)

// =============================================================================
// Service Ordering Functions
// =============================================================================

// TopologicalSort sorts services by their dependencies using Kahn's algorithm.
// Services with no dependencies come first.
//
// The dependency lists of a stack document are "start after" hints; the
// sort turns them into a concrete start order:
//  1. Build a map of service dependencies (in-degree)
//  2. Start with services that have no dependencies (in-degree = 0)
//  3. Process each service, reducing the in-degree of its dependents
//  4. When a dependent's in-degree reaches 0, add it to the queue
//
// If a cycle exists (which is caught at parse time), remaining services
// are appended to the result as a fallback.
//
// Example:
//
//	// Services: web → api → db
//	services := []stack.Service{
//	    {Name: "web", DependsOn: []string{"api"}},
//	    {Name: "api", DependsOn: []string{"db"}},
//	    {Name: "db"},
//	}
//	sorted := TopologicalSort(services)
//	// Result: [db, api, web]
func TopologicalSort(services []stack.Service) []stack.Service {
	if len(services) == 0 {
		return services
	}

	serviceMap := make(map[string]stack.Service)
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, svc := range services {
		serviceMap[svc.Name] = svc
		inDegree[svc.Name] = len(svc.DependsOn)
		for _, dep := range svc.DependsOn {
			dependents[dep] = append(dependents[dep], svc.Name)
		}
	}

	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}

	// Process queue (BFS)
	var result []stack.Service
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]

		if svc, ok := serviceMap[name]; ok {
			result = append(result, svc)
		}

		for _, dep := range dependents[name] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Cycle fallback: append anything the sort could not place
	if len(result) < len(services) {
		for _, svc := range services {
			found := false
			for _, r := range result {
				if r.Name == svc.Name {
					found = true
					break
				}
			}
			if !found {
				result = append(result, svc)
			}
		}
	}

	return result
}

// ReverseOrder returns services in teardown order: dependents first, their
// dependencies last. Used when stopping or destroying a stack.
func ReverseOrder(services []stack.Service) []stack.Service {
	sorted := TopologicalSort(services)
	reversed := make([]stack.Service, len(sorted))
	for i, svc := range sorted {
		reversed[len(sorted)-1-i] = svc
	}
	return reversed
}
