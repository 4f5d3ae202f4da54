// Package api provides the HTTP REST API for guard patrol puzzles.
//
// Endpoints:
//
// Puzzles:
//   - GET /api/puzzles - List puzzles in the puzzles directory
//   - POST /api/puzzles - Save a puzzle ({"id", "name", "layout", "expected"})
//   - GET /api/puzzles/{name} - Get a puzzle
//   - POST /api/puzzles/{name}/solve - Solve a stored puzzle
//
// Solving:
//   - POST /api/solve - Solve a stored puzzle ({"puzzle"}), raw rows ({"layout"})
//     or raw text ({"grid"}); "strategy" and "workers" tune the obstruction search
//   - GET /api/solutions?puzzle=&limit= - Recorded solver runs, newest first
//
// Sessions:
//   - POST /api/sessions - Create a patrol session ({"puzzle_id"})
//   - GET /api/sessions?sort=created|accessed&order=asc|desc&limit=&puzzle=
//   - GET /api/sessions/{id}
//   - DELETE /api/sessions/{id}
//
// Patrol:
//   - GET /api/sessions/{id}/state
//   - POST /api/sessions/{id}/step - Advance the guard ({"steps": 10, "reset": false})
//   - POST /api/sessions/{id}/reset - Return the guard to its start
//   - POST /api/sessions/{id}/obstacles - Place an obstacle ({"row": 6, "col": 3})
//   - DELETE /api/sessions/{id}/obstacles - Remove placed obstacles
//
// Updates:
//   - GET /ws?session={id} - Patrol state after every change
//   - GET /ws?puzzle={name} - Search progress while the puzzle is solved
//     (layouts solved inline publish on "inline")
//
// Error Handling:
//
// Errors are returned as {"error": "message"}. Unknown sessions and puzzles
// are 404, malformed grids and invalid requests 400, and a guard that never
// leaves the grid while counting cells is 422.
package api
