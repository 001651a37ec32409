package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"vizflow/internal/fakesvc"
	"vizflow/internal/rendercache"
	"vizflow/internal/viz"
)

var _ = ginkgo.Describe("Session", func() {
	var (
		f   *fixture
		ctx context.Context
	)

	ginkgo.BeforeEach(func() {
		var err error
		f, err = newFixture()
		gomega.Expect(err).To(gomega.Succeed())
		ginkgo.DeferCleanup(f.close)
		ctx = context.Background()
	})

	ginkgo.Describe("GoalCatalog.Generate", func() {
		for n := viz.MinCount; n <= viz.MaxCount; n++ {
			n := n
			ginkgo.It(fmt.Sprintf("yields exactly %d goals", n), func() {
				goals, err := f.sess.Goals.Generate(ctx, n)
				gomega.Expect(err).To(gomega.Succeed())
				gomega.Expect(goals).To(gomega.HaveLen(n))
				gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageGoalsLoaded))
			})
		}

		ginkgo.It("fails with a service error and keeps the catalog when the count is short", func() {
			first, err := f.sess.Goals.Generate(ctx, 3)
			gomega.Expect(err).To(gomega.Succeed())

			f.gw.goals = func(n int) ([]viz.Goal, error) {
				return []viz.Goal{{ID: "9", Question: "only one"}}, nil
			}
			_, err = f.sess.Goals.Generate(ctx, 4)
			gomega.Expect(viz.IsService(err)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(f.sess.Goals.List()).To(gomega.Equal(first))
		})

		ginkgo.It("rejects an out-of-range count without a request", func() {
			_, err := f.sess.Goals.Generate(ctx, 11)
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
			gomega.Expect(f.gw.total()).To(gomega.BeZero())
		})

		ginkgo.It("drops selection, titles and artifact", func() {
			_, err := f.toArtifact(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			_, err = f.sess.Goals.Generate(ctx, 2)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(f.sess.Snapshot()).To(gomega.BeAssignableToTypeOf(GoalsLoaded{}))
			_, ok := f.sess.Editor.Current()
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("GoalCatalog.Add", func() {
		ginkgo.It("appends without touching the selection", func() {
			goals, err := f.sess.Goals.Generate(ctx, 2)
			gomega.Expect(err).To(gomega.Succeed())
			_, err = f.sess.Goals.Select(goals[1].ID)
			gomega.Expect(err).To(gomega.Succeed())

			g, err := f.sess.Goals.Add(ctx, "Which stores are growing fastest?", 2)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(g.ID).To(gomega.Equal(viz.GoalID("2")))
			gomega.Expect(f.sess.Goals.List()).To(gomega.HaveLen(3))

			sel, ok := f.sess.Goals.Selected()
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(sel.ID).To(gomega.Equal(goals[1].ID))
		})

		ginkgo.It("rejects a blank description locally", func() {
			_, err := f.sess.Goals.Add(ctx, "   ", 5)
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
			gomega.Expect(f.gw.total()).To(gomega.BeZero())
		})

		ginkgo.It("moves an idle session to GoalsLoaded", func() {
			_, err := f.sess.Goals.Add(ctx, "Custom goal", 5)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageGoalsLoaded))
		})
	})

	ginkgo.Describe("reset law", func() {
		reach := []struct {
			stage Stage
			setup func() viz.GoalID
		}{
			{StageGoalSelected, func() viz.GoalID {
				goals, _ := f.sess.Goals.Generate(ctx, 3)
				_, _ = f.sess.Goals.Select(goals[0].ID)
				return goals[0].ID
			}},
			{StageTitlesLoaded, func() viz.GoalID {
				goals, _ := f.sess.Goals.Generate(ctx, 3)
				_, _ = f.sess.Goals.Select(goals[0].ID)
				_, _ = f.sess.Visualizer.RequestTitles(ctx, 2)
				return goals[0].ID
			}},
			{StageArtifactReady, func() viz.GoalID {
				a, _ := f.toArtifact(ctx)
				return a.SourceGoal.ID
			}},
		}
		for _, r := range reach {
			stage, setup := r.stage, r.setup
			ginkgo.It(fmt.Sprintf("re-selecting from %s clears titles and artifact", stage), func() {
				id := setup()
				gomega.Expect(f.sess.Stage()).To(gomega.Equal(stage))

				_, err := f.sess.Goals.Select(id)
				gomega.Expect(err).To(gomega.Succeed())
				gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageGoalSelected))
				_, ok := f.sess.Visualizer.Titles()
				gomega.Expect(ok).To(gomega.BeFalse())
				_, ok = f.sess.Editor.Current()
				gomega.Expect(ok).To(gomega.BeFalse())
			})
		}

		ginkgo.It("rejects an unknown goal", func() {
			_, err := f.sess.Goals.Generate(ctx, 2)
			gomega.Expect(err).To(gomega.Succeed())
			_, err = f.sess.Goals.Select("42")
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageGoalsLoaded))
		})
	})

	ginkgo.Describe("Visualizer", func() {
		ginkgo.It("rejects render before titles with zero gateway calls", func() {
			goals, err := f.sess.Goals.Generate(ctx, 3)
			gomega.Expect(err).To(gomega.Succeed())
			_, err = f.sess.Goals.Select(goals[0].ID)
			gomega.Expect(err).To(gomega.Succeed())
			before := f.gw.total()

			_, err = f.sess.Visualizer.RequestRender(ctx, "anything", viz.RendererPrimary, 1)
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(f.gw.total()).To(gomega.Equal(before))
		})

		ginkgo.It("suggests the closest title for a near miss", func() {
			goals, _ := f.sess.Goals.Generate(ctx, 1)
			_, _ = f.sess.Goals.Select(goals[0].ID)
			ts, err := f.sess.Visualizer.RequestTitles(ctx, 2)
			gomega.Expect(err).To(gomega.Succeed())

			typo := ts.Titles[1][:len(ts.Titles[1])-2]
			_, err = f.sess.Visualizer.RequestRender(ctx, typo, viz.RendererPrimary, 2)
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("did you mean %q", ts.Titles[1]))
			gomega.Expect(f.gw.count("Render")).To(gomega.BeZero())
		})

		ginkgo.It("rejects a count different from the titles' count", func() {
			goals, _ := f.sess.Goals.Generate(ctx, 1)
			_, _ = f.sess.Goals.Select(goals[0].ID)
			ts, _ := f.sess.Visualizer.RequestTitles(ctx, 2)
			_, err := f.sess.Visualizer.RequestRender(ctx, ts.Titles[0], viz.RendererPrimary, 3)
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
			gomega.Expect(f.gw.count("Render")).To(gomega.BeZero())
		})

		ginkgo.It("invalidates titles when the count changes", func() {
			goals, _ := f.sess.Goals.Generate(ctx, 1)
			_, _ = f.sess.Goals.Select(goals[0].ID)
			_, err := f.sess.Visualizer.RequestTitles(ctx, 2)
			gomega.Expect(err).To(gomega.Succeed())

			gomega.Expect(f.sess.Visualizer.SetCount(2)).To(gomega.Succeed())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageTitlesLoaded))

			gomega.Expect(f.sess.Visualizer.SetCount(4)).To(gomega.Succeed())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageGoalSelected))
			sel := f.sess.Snapshot().(GoalSelected)
			gomega.Expect(sel.Count).To(gomega.Equal(4))
		})

		ginkgo.It("keeps the chosen title after a failed render", func() {
			goals, _ := f.sess.Goals.Generate(ctx, 2)
			_, _ = f.sess.Goals.Select(goals[0].ID)
			ts, _ := f.sess.Visualizer.RequestTitles(ctx, 1)
			f.fake.Inject(fakesvc.PathRender, fakesvc.Fault{Status: http.StatusInternalServerError, Detail: "renderer crashed"})

			_, err := f.sess.Visualizer.RequestRender(ctx, ts.Titles[0], viz.RendererSecondary, 1)
			gomega.Expect(viz.IsService(err)).To(gomega.BeTrue())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("renderer crashed"))

			st, ok := f.sess.Snapshot().(TitlesLoaded)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(st.Chosen).To(gomega.Equal(ts.Titles[0]))

			_, err = f.sess.Visualizer.RequestRender(ctx, st.Chosen, viz.RendererSecondary, 1)
			gomega.Expect(err).To(gomega.Succeed())
		})

		ginkgo.It("reports a success without raster as a data-shape error", func() {
			goals, _ := f.sess.Goals.Generate(ctx, 2)
			_, _ = f.sess.Goals.Select(goals[0].ID)
			ts, _ := f.sess.Visualizer.RequestTitles(ctx, 1)
			f.fake.Inject(fakesvc.PathRender, fakesvc.Fault{OmitRaster: true})

			_, err := f.sess.Visualizer.RequestRender(ctx, ts.Titles[0], viz.RendererPrimary, 1)
			gomega.Expect(viz.IsDataShape(err)).To(gomega.BeTrue())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageTitlesLoaded))
		})

		ginkgo.It("rejects an undecodable raster without committing or caching it", func() {
			goals, _ := f.sess.Goals.Generate(ctx, 2)
			_, _ = f.sess.Goals.Select(goals[0].ID)
			ts, _ := f.sess.Visualizer.RequestTitles(ctx, 1)
			f.fake.Inject(fakesvc.PathRender, fakesvc.Fault{Raster: "%%% not base64 %%%"})

			_, err := f.sess.Visualizer.RequestRender(ctx, ts.Titles[0], viz.RendererPrimary, 1)
			gomega.Expect(viz.IsDataShape(err)).To(gomega.BeTrue())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageTitlesLoaded))
			_, ok := f.sess.Editor.Current()
			gomega.Expect(ok).To(gomega.BeFalse())
			gomega.Expect(f.cache.(*rendercache.MemCache).Saves()).To(gomega.Equal(0))
		})

		ginkgo.It("goes back to titles from a rendered artifact", func() {
			a, err := f.toArtifact(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			ts, err := f.sess.Visualizer.BackToTitles()
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(ts.Titles).To(gomega.ContainElement(a.SourceTitle))
			gomega.Expect(f.sess.Snapshot().(TitlesLoaded).Chosen).To(gomega.Equal(a.SourceTitle))
		})
	})

	ginkgo.Describe("end to end", func() {
		ginkgo.It("renders, edits and undoes back to the rendered artifact", func() {
			goals, err := f.sess.Goals.Generate(ctx, 3)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(goals).To(gomega.HaveLen(3))

			_, err = f.sess.Goals.Select(goals[0].ID)
			gomega.Expect(err).To(gomega.Succeed())

			ts, err := f.sess.Visualizer.RequestTitles(ctx, 2)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(ts.Titles).To(gomega.HaveLen(2))

			rendered, err := f.sess.Visualizer.RequestRender(ctx, ts.Titles[0], viz.RendererPrimary, 2)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(rendered.MimeType).To(gomega.Equal("image/png"))
			gomega.Expect(rendered.SourceGoal.ID).To(gomega.Equal(goals[0].ID))

			edited, err := f.sess.Editor.EditByInstruction(ctx, "add legend")
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(edited.SameContent(rendered)).To(gomega.BeFalse())
			gomega.Expect(edited.SourceTitle).To(gomega.Equal(rendered.SourceTitle))

			undone, err := f.sess.Editor.UndoLast(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(undone.Exhausted).To(gomega.BeFalse())
			gomega.Expect(undone.Artifact.SameContent(rendered)).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("Editor", func() {
		var rendered viz.Artifact

		ginkgo.BeforeEach(func() {
			var err error
			rendered, err = f.toArtifact(ctx)
			gomega.Expect(err).To(gomega.Succeed())
		})

		ginkgo.It("reports exhausted history on undo without an edit", func() {
			out, err := f.sess.Editor.UndoLast(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(out.Exhausted).To(gomega.BeTrue())
			gomega.Expect(out.Artifact).To(gomega.Equal(rendered))
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageArtifactReady))
		})

		ginkgo.It("derives a later edit from the pre-edit state after undo", func() {
			afterA, err := f.sess.Editor.EditByInstruction(ctx, "make bars red")
			gomega.Expect(err).To(gomega.Succeed())
			_, err = f.sess.Editor.UndoLast(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			afterB, err := f.sess.Editor.EditByInstruction(ctx, "add a title")
			gomega.Expect(err).To(gomega.Succeed())

			gomega.Expect(afterB.SameContent(afterA)).To(gomega.BeFalse())
			gomega.Expect(f.fake.HistoryDepth(testToken)).To(gomega.Equal(2))
		})

		ginkgo.It("memoizes the explanation until the artifact changes", func() {
			first, err := f.sess.Editor.Explain(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			second, err := f.sess.Editor.Explain(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(second).To(gomega.Equal(first))
			gomega.Expect(f.gw.count("Explain")).To(gomega.Equal(1))

			_, err = f.sess.Editor.EditByInstruction(ctx, "use a log scale")
			gomega.Expect(err).To(gomega.Succeed())
			third, err := f.sess.Editor.Explain(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(third).NotTo(gomega.Equal(first))
			gomega.Expect(f.gw.count("Explain")).To(gomega.Equal(2))
		})

		ginkgo.It("evaluates without changing the artifact", func() {
			evals, err := f.sess.Editor.EvaluateAndRepair(ctx)
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(evals).To(gomega.HaveLen(6))
			cur, ok := f.sess.Editor.Current()
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(cur).To(gomega.Equal(rendered))
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageArtifactReady))
		})

		ginkgo.It("rolls back to the previous artifact when an edit fails", func() {
			f.fake.Inject(fakesvc.PathEdit, fakesvc.Fault{Status: http.StatusBadGateway, Detail: "model unavailable"})
			_, err := f.sess.Editor.EditByInstruction(ctx, "add legend")
			gomega.Expect(viz.IsService(err)).To(gomega.BeTrue())
			cur, _ := f.sess.Editor.Current()
			gomega.Expect(cur).To(gomega.Equal(rendered))
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageArtifactReady))

			notices := f.sess.Notices().List()
			gomega.Expect(notices).To(gomega.HaveLen(1))
			gomega.Expect(notices[0].Kind).To(gomega.Equal(viz.KindService))
			gomega.Expect(notices[0].Op).To(gomega.Equal("edit visualization"))
		})

		ginkgo.It("keeps the artifact and cache when an edit returns an undecodable raster", func() {
			f.fake.Inject(fakesvc.PathEdit, fakesvc.Fault{Raster: "not*base64"})
			_, err := f.sess.Editor.EditByInstruction(ctx, "add legend")
			gomega.Expect(viz.IsDataShape(err)).To(gomega.BeTrue())

			cur, _ := f.sess.Editor.Current()
			gomega.Expect(cur).To(gomega.Equal(rendered))
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageArtifactReady))
			cached, ok, err := f.cache.Load()
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(cached.SameContent(rendered)).To(gomega.BeTrue())
		})

		ginkgo.It("rejects an empty instruction locally", func() {
			before := f.gw.total()
			_, err := f.sess.Editor.EditByInstruction(ctx, "  ")
			gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
			gomega.Expect(f.gw.total()).To(gomega.Equal(before))
		})

		ginkgo.It("persists every new artifact", func() {
			edited, err := f.sess.Editor.EditByInstruction(ctx, "add legend")
			gomega.Expect(err).To(gomega.Succeed())
			cached, ok, err := f.cache.Load()
			gomega.Expect(err).To(gomega.Succeed())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(cached).To(gomega.Equal(edited))
		})

		ginkgo.It("clears remote and local state", func() {
			gomega.Expect(f.sess.Editor.Clear(ctx)).To(gomega.Succeed())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageIdle))
			_, ok, _ := f.cache.Load()
			gomega.Expect(ok).To(gomega.BeFalse())
			gomega.Expect(f.fake.HistoryDepth(testToken)).To(gomega.BeZero())
		})

		ginkgo.It("changes nothing when the remote clear fails", func() {
			f.fake.Inject(fakesvc.PathClear, fakesvc.Fault{Status: http.StatusInternalServerError})
			err := f.sess.Editor.Clear(ctx)
			gomega.Expect(viz.IsService(err)).To(gomega.BeTrue())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageArtifactReady))
			_, ok, _ := f.cache.Load()
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("in-flight guard", func() {
		ginkgo.It("rejects a second operation while one is running", func() {
			release := f.gw.holdCalls()
			done := make(chan error, 1)
			go func() {
				_, err := f.sess.Goals.Generate(ctx, 3)
				done <- err
			}()
			gomega.Eventually(f.gw.started).Should(gomega.Receive(gomega.Equal("GenerateGoals")))

			op, busy := f.sess.Busy()
			gomega.Expect(busy).To(gomega.BeTrue())
			gomega.Expect(op).To(gomega.Equal("generate goals"))

			_, err := f.sess.Goals.Add(ctx, "another", 3)
			gomega.Expect(errors.Is(err, viz.ErrBusy)).To(gomega.BeTrue())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("generate goals in progress"))

			release()
			gomega.Eventually(done).Should(gomega.Receive(gomega.BeNil()))
			_, busy = f.sess.Busy()
			gomega.Expect(busy).To(gomega.BeFalse())
		})

		ginkgo.It("cancels the in-flight request", func() {
			release := f.gw.holdCalls()
			ginkgo.DeferCleanup(release)
			done := make(chan error, 1)
			go func() {
				_, err := f.sess.Goals.Generate(ctx, 3)
				done <- err
			}()
			gomega.Eventually(f.gw.started).Should(gomega.Receive())
			gomega.Expect(f.sess.Cancel()).To(gomega.BeTrue())

			var err error
			gomega.Eventually(done).Should(gomega.Receive(&err))
			gomega.Expect(viz.IsNetwork(err)).To(gomega.BeTrue(), "got %v", err)
			gomega.Expect(errors.Is(err, context.Canceled)).To(gomega.BeTrue())
			gomega.Expect(f.sess.Stage()).To(gomega.Equal(StageIdle))
		})
	})
})

var _ = ginkgo.Describe("Session timeout", func() {
	ginkgo.It("releases the guard when a request times out", func() {
		f, err := newFixture(func(o *Options) { o.RequestTimeout = 200 * time.Millisecond })
		gomega.Expect(err).To(gomega.Succeed())
		ginkgo.DeferCleanup(f.close)

		release := f.gw.holdCalls()
		_, err = f.sess.Goals.Generate(context.Background(), 2)
		gomega.Expect(viz.IsNetwork(err)).To(gomega.BeTrue(), "got %v", err)
		gomega.Expect(errors.Is(err, context.DeadlineExceeded)).To(gomega.BeTrue())
		release()

		_, busy := f.sess.Busy()
		gomega.Expect(busy).To(gomega.BeFalse())
		goals, err := f.sess.Goals.Generate(context.Background(), 2)
		gomega.Expect(err).To(gomega.Succeed())
		gomega.Expect(goals).To(gomega.HaveLen(2))
	})
})

var _ = ginkgo.Describe("Resume", func() {
	ginkgo.It("reopens in ArtifactReady from the render cache", func() {
		path := ginkgo.GinkgoT().TempDir() + "/cache.db"
		cache, err := rendercache.Open(path, "default")
		gomega.Expect(err).To(gomega.Succeed())

		f, err := newFixture(func(o *Options) { o.Cache = cache })
		gomega.Expect(err).To(gomega.Succeed())
		rendered, err := f.toArtifact(context.Background())
		gomega.Expect(err).To(gomega.Succeed())
		f.close()

		reopened, err := rendercache.Open(path, "default")
		gomega.Expect(err).To(gomega.Succeed())
		g, err := newFixture(func(o *Options) { o.Cache = reopened })
		gomega.Expect(err).To(gomega.Succeed())
		ginkgo.DeferCleanup(g.close)

		st, ok := g.sess.Snapshot().(ArtifactReady)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(st.Artifact).To(gomega.Equal(rendered))
		gomega.Expect(st.Titles).To(gomega.BeNil())
		gomega.Expect(g.sess.Goals.List()).To(gomega.Equal([]viz.Goal{rendered.SourceGoal}))

		_, err = g.sess.Visualizer.BackToTitles()
		gomega.Expect(viz.IsValidation(err)).To(gomega.BeTrue())
	})
})
