package visualizer

import (
	"bytes"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/athapong/concept-graph/pkg/graph"
)

// The HTML template for the D3.js concept map
const d3Template = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>{{.Title}}</title>
    <script src="https://d3js.org/d3.v7.min.js"></script>
    <style>
        body {
            margin: 0;
            font-family: Arial, sans-serif;
        }
        #graph {
            width: 100%;
            height: 100vh;
            background-color: #f5f5f5;
        }
        .node {
            stroke: #fff;
            stroke-width: 1.5px;
            fill: #4e79a7;
        }
        .node.match {
            fill: #e15759;
        }
        .link {
            stroke: #999;
            stroke-opacity: 0.6;
        }
        .node-label {
            font-size: 11px;
            pointer-events: none;
        }
        .controls {
            position: absolute;
            top: 10px;
            left: 10px;
            max-width: 320px;
            background-color: rgba(255,255,255,0.9);
            padding: 10px;
            border-radius: 5px;
            box-shadow: 0 0 10px rgba(0,0,0,0.1);
        }
        #details {
            font-size: 12px;
            white-space: pre-wrap;
        }
    </style>
</head>
<body>
    <div id="graph"></div>
    <div class="controls">
        <h3>{{.Title}}</h3>
        <p>Concepts: {{.NodeCount}}, Links: {{.EdgeCount}}</p>
        <div>
            <label for="search">Highlight title or keyword:</label>
            <input id="search" type="text">
        </div>
        <div id="details"></div>
    </div>

    <script>
        const graphData = {{.Graph}};

        const degree = {};
        graphData.edges.forEach(e => {
            degree[e.source] = (degree[e.source] || 0) + 1;
            degree[e.target] = (degree[e.target] || 0) + 1;
        });

        const simulation = d3.forceSimulation(graphData.nodes)
            .force("link", d3.forceLink(graphData.edges).id(d => d.id).distance(d => 160 * (1 - d.weight) + 40))
            .force("charge", d3.forceManyBody().strength(-300))
            .force("center", d3.forceCenter(window.innerWidth / 2, window.innerHeight / 2));

        const svg = d3.select("#graph")
            .append("svg")
            .attr("width", "100%")
            .attr("height", "100%")
            .call(d3.zoom().on("zoom", (event) => {
                g.attr("transform", event.transform);
            }));

        const g = svg.append("g");

        const link = g.append("g")
            .selectAll("line")
            .data(graphData.edges)
            .enter()
            .append("line")
            .attr("class", "link")
            .attr("stroke-width", d => Math.max(1, d.weight * 4));

        const node = g.append("g")
            .selectAll("circle")
            .data(graphData.nodes)
            .enter()
            .append("circle")
            .attr("class", "node")
            .attr("r", d => 6 + 2 * Math.sqrt(degree[d.id] || 0))
            .on("click", (event, d) => {
                const props = d.properties || {};
                const keywords = (props.keywords || []).join(", ");
                d3.select("#details").text(d.label + "\n\n" + (props.description || "") + (keywords ? "\n\nKeywords: " + keywords : ""));
            })
            .call(d3.drag()
                .on("start", dragstarted)
                .on("drag", dragged)
                .on("end", dragended));

        const label = g.append("g")
            .selectAll("text")
            .data(graphData.nodes)
            .enter()
            .append("text")
            .attr("class", "node-label")
            .attr("dx", 12)
            .attr("dy", ".35em")
            .text(d => d.label);

        node.append("title")
            .text(d => d.label);

        link.append("title")
            .text(d => "similarity " + d.weight.toFixed(2));

        simulation.on("tick", () => {
            link
                .attr("x1", d => d.source.x)
                .attr("y1", d => d.source.y)
                .attr("x2", d => d.target.x)
                .attr("y2", d => d.target.y);

            node
                .attr("cx", d => d.x)
                .attr("cy", d => d.y);

            label
                .attr("x", d => d.x)
                .attr("y", d => d.y);
        });

        d3.select("#search").on("input", function() {
            const term = this.value.trim().toLowerCase();
            node.classed("match", d => {
                if (!term) return false;
                const keywords = ((d.properties || {}).keywords || []).map(k => k.toLowerCase());
                return d.label.toLowerCase().includes(term) || keywords.includes(term);
            });
        });

        function dragstarted(event, d) {
            if (!event.active) simulation.alphaTarget(0.3).restart();
            d.fx = d.x;
            d.fy = d.y;
        }

        function dragged(event, d) {
            d.fx = event.x;
            d.fy = event.y;
        }

        function dragended(event, d) {
            if (!event.active) simulation.alphaTarget(0);
            d.fx = null;
            d.fy = null;
        }
    </script>
</body>
</html>
`

var pageTemplate = template.Must(template.New("d3").Parse(d3Template))

// D3Visualizer renders concept maps as standalone D3.js pages
type D3Visualizer struct {
	outputPath string
	title      string
}

// NewD3Visualizer creates a visualizer writing to outputPath
func NewD3Visualizer(outputPath, title string) *D3Visualizer {
	if title == "" {
		title = "Concept Map"
	}
	return &D3Visualizer{
		outputPath: outputPath,
		title:      title,
	}
}

// Render writes the HTML page for view to w. The view is embedded as a
// JavaScript object literal.
func (v *D3Visualizer) Render(w io.Writer, view *graph.KnowledgeGraphData) error {
	data := struct {
		Title     string
		Graph     *graph.KnowledgeGraphData
		NodeCount int
		EdgeCount int
	}{
		Title:     v.title,
		Graph:     view,
		NodeCount: len(view.Nodes),
		EdgeCount: len(view.Edges),
	}
	return pageTemplate.Execute(w, data)
}

// Visualize writes the HTML page for view to the output path
func (v *D3Visualizer) Visualize(view *graph.KnowledgeGraphData) error {
	dir := filepath.Dir(v.outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := v.Render(&buf, view); err != nil {
		return err
	}
	return os.WriteFile(v.outputPath, buf.Bytes(), 0644)
}
